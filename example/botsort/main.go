package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/swdee/go-botsort/mot"
	"github.com/swdee/go-botsort/reid"
	"github.com/swdee/go-botsort/render"
	"github.com/swdee/go-botsort/store"
	"github.com/swdee/go-botsort/tracker"
	"gocv.io/x/gocv"
)

// Demo runs the tracker over a MOT Challenge style sequence of images and
// detections
type Demo struct {
	bs      *tracker.BoTSORT
	cfg     tracker.Config
	seq     *mot.Sequence
	imgDir  string
	imgExt  string
	labels  []string
	reidMdl *reid.Model
	rec     *store.Recorder
	session string
	outDir  string
	trail   *tracker.Trail
}

// NewDemo loads the detections and sets up the tracker and its optional
// collaborators
func NewDemo(cfg tracker.Config, detFile, imgDir, imgExt, labelFile,
	reidFile, dbFile, outDir string, debug bool) (*Demo, error) {

	d := &Demo{
		cfg:    cfg,
		imgDir: imgDir,
		imgExt: imgExt,
		outDir: outDir,
		trail:  tracker.NewTrail(30),
	}

	f, err := os.Open(detFile)

	if err != nil {
		return nil, fmt.Errorf("error opening detections: %w", err)
	}

	defer f.Close()

	d.seq, err = mot.ReadDetections(f, 0)

	if err != nil {
		return nil, fmt.Errorf("error reading detections: %w", err)
	}

	if labelFile != "" {
		d.labels, err = mot.LoadLabels(labelFile)

		if err != nil {
			return nil, fmt.Errorf("error loading labels: %w", err)
		}
	}

	level := slog.LevelInfo

	if debug {
		level = slog.LevelDebug
	}

	opts := []tracker.Option{
		tracker.WithLogger(tracker.NewTextLogger(level)),
	}

	if reidFile != "" {
		d.reidMdl, err = reid.NewModel(reid.DefaultModelParams(reidFile))

		if err != nil {
			return nil, fmt.Errorf("error loading ReID model: %w", err)
		}

		opts = append(opts, tracker.WithExtractor(d.reidMdl))
	}

	d.bs, err = tracker.NewBoTSORT(cfg, opts...)

	if err != nil {
		return nil, fmt.Errorf("error creating tracker: %w", err)
	}

	if dbFile != "" {
		d.rec, err = store.Open(dbFile)

		if err != nil {
			return nil, err
		}

		d.session, err = d.rec.StartSession(context.Background(), filepath.Base(imgDir), cfg)

		if err != nil {
			return nil, err
		}

		log.Printf("Recording tracks to %s, session %s", dbFile, d.session)
	}

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating output directory: %w", err)
		}
	}

	return d, nil
}

// Close frees all resources
func (d *Demo) Close() {
	if d.rec != nil {
		if err := d.rec.EndSession(context.Background(), d.session); err != nil {
			log.Printf("Error ending session: %v", err)
		}
		d.rec.Close()
	}

	if d.reidMdl != nil {
		d.reidMdl.Close()
	}

	d.bs.Close()
}

// Run tracks every frame of the sequence and writes the results
func (d *Demo) Run(ctx context.Context, w *mot.Writer) error {

	for frame := 1; frame <= d.seq.LastFrame(); frame++ {

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := d.processFrame(ctx, frame, w); err != nil {
			return err
		}
	}

	return w.Flush()
}

// processFrame runs a single frame through the tracker
func (d *Demo) processFrame(ctx context.Context, frame int, w *mot.Writer) error {

	imgFile := filepath.Join(d.imgDir, fmt.Sprintf("%06d%s", frame, d.imgExt))

	img := gocv.IMRead(imgFile, gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		return fmt.Errorf("error reading image %s", imgFile)
	}

	tracks, err := d.bs.Track(d.seq.Frame(frame), img)

	if err != nil {
		return fmt.Errorf("error tracking frame %d: %w", frame, err)
	}

	if err := w.WriteFrame(frame, tracks); err != nil {
		return err
	}

	if d.rec != nil {
		if err := d.rec.RecordFrame(ctx, d.session, frame, tracks); err != nil {
			return err
		}
	}

	if d.outDir != "" {
		return d.renderFrame(img, frame, tracks)
	}

	return nil
}

// renderFrame draws the tracks on the image and saves it to the output
// directory
func (d *Demo) renderFrame(img gocv.Mat, frame int, tracks []*tracker.Track) error {

	for _, t := range tracks {
		d.trail.Add(t)
	}

	d.trail.Prune(append(d.bs.TrackedTracks(), d.bs.LostTracks()...))

	render.TrackBoxes(&img, tracks, d.labels, render.DefaultFont(), 2)
	render.Trail(&img, tracks, d.trail, render.DefaultTrailStyle())
	render.FrameStats(&img, frame, d.bs.Stats(), render.DefaultFont())

	outFile := filepath.Join(d.outDir, fmt.Sprintf("%06d.jpg", frame))

	if ok := gocv.IMWrite(outFile, img); !ok {
		return fmt.Errorf("error writing image %s", outFile)
	}

	return nil
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	detFile := flag.String("d", "../data/MOT17-04/det/det.txt", "MOT format detection file")
	imgDir := flag.String("i", "../data/MOT17-04/img1", "Directory of sequence images named by frame number")
	imgExt := flag.String("e", ".jpg", "Image file extension")
	outFile := flag.String("o", "results.txt", "MOT format tracking results file to write")
	configFile := flag.String("c", "", "JSON tracker config file, defaults are used when not set")
	labelFile := flag.String("l", "", "Text file containing class labels")
	reidFile := flag.String("r", "", "ReID model file, enables appearance matching")
	dbFile := flag.String("db", "", "SQLite database to record track history to")
	renderDir := flag.String("render", "", "Directory to save annotated frames to")
	gmcMethod := flag.String("gmc", "", "Camera motion compensation method: none, sparseOptFlow, orb, ecc")
	frameRate := flag.Int("fps", 0, "Frame rate of the sequence")
	debug := flag.Bool("debug", false, "Log per frame tracking statistics")

	flag.Parse()

	cfg := tracker.DefaultConfig()

	if *configFile != "" {
		var err error
		cfg, err = tracker.LoadConfig(*configFile)

		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
	}

	if *gmcMethod != "" {
		cfg.GMCMethod = *gmcMethod
	}

	if *frameRate > 0 {
		cfg.FrameRate = *frameRate
	}

	demo, err := NewDemo(cfg, *detFile, *imgDir, *imgExt, *labelFile, *reidFile,
		*dbFile, *renderDir, *debug)

	if err != nil {
		log.Fatalf("Error creating demo: %v", err)
	}

	defer demo.Close()

	out, err := os.Create(*outFile)

	if err != nil {
		log.Fatalf("Error creating results file: %v", err)
	}

	defer out.Close()

	if err := demo.Run(context.Background(), mot.NewWriter(out)); err != nil {
		log.Fatalf("Error running tracker: %v", err)
	}

	log.Printf("Tracked %d frames, results written to %s", demo.bs.FrameID(), *outFile)
}
