// Package mot reads detections and writes tracking results in the MOT
// Challenge text format:
//
//	frame, id, bb_left, bb_top, bb_width, bb_height, conf, x, y, z
//
// Detection files carry id -1, result files carry the track ID.
package mot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/swdee/go-botsort/tracker"
)

// ErrMalformedLine is returned for a line that can not be parsed
var ErrMalformedLine = errors.New("malformed MOT line")

// minFields is the number of leading columns required on each line
const minFields = 7

// Sequence holds the detections of a sequence keyed by frame number
type Sequence struct {
	frames map[int][]tracker.Detection
	last   int
}

// Frame returns the detections of a frame, nil if there are none
func (s *Sequence) Frame(frame int) []tracker.Detection {
	return s.frames[frame]
}

// LastFrame returns the highest frame number seen
func (s *Sequence) LastFrame() int {
	return s.last
}

// Frames returns the frame numbers that have detections in ascending order
func (s *Sequence) Frames() []int {

	out := make([]int, 0, len(s.frames))

	for f := range s.frames {
		out = append(out, f)
	}

	sort.Ints(out)

	return out
}

// ReadDetections parses a MOT detection file.  Each detection is given an
// ID equal to its line number so output tracks can be related back to the
// input.  The class label is read from the eighth column when present and
// not negative, otherwise label is used.
func ReadDetections(r io.Reader, label int) (*Sequence, error) {

	seq := &Sequence{
		frames: make(map[int][]tracker.Detection),
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++

		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		frame, det, err := parseLine(line, label)

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		det.ID = int64(lineNum)
		seq.frames[frame] = append(seq.frames[frame], det)
		seq.last = max(seq.last, frame)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading detections: %w", err)
	}

	return seq, nil
}

// parseLine parses a single comma separated detection
func parseLine(line string, label int) (int, tracker.Detection, error) {

	fields := strings.Split(line, ",")

	if len(fields) < minFields {
		return 0, tracker.Detection{}, fmt.Errorf("%w: expected at least %d fields, got %d",
			ErrMalformedLine, minFields, len(fields))
	}

	frame, err := strconv.Atoi(strings.TrimSpace(fields[0]))

	if err != nil {
		return 0, tracker.Detection{}, fmt.Errorf("%w: frame %q", ErrMalformedLine, fields[0])
	}

	vals := make([]float32, 5)

	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+2]), 32)

		if err != nil {
			return 0, tracker.Detection{}, fmt.Errorf("%w: column %d %q",
				ErrMalformedLine, i+3, fields[i+2])
		}

		vals[i] = float32(v)
	}

	if len(fields) > minFields {
		if cls, err := strconv.Atoi(strings.TrimSpace(fields[minFields])); err == nil && cls >= 0 {
			label = cls
		}
	}

	det := tracker.NewDetection(tracker.NewRect(vals[0], vals[1], vals[2], vals[3]),
		label, vals[4], 0)

	return frame, det, nil
}

// Writer writes tracker results in MOT format
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer on w.  Flush must be called when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFrame writes one line per track
func (mw *Writer) WriteFrame(frame int, tracks []*tracker.Track) error {

	for _, t := range tracks {
		rect := t.GetRect()

		_, err := fmt.Fprintf(mw.w, "%d,%d,%.2f,%.2f,%.2f,%.2f,%.4f,-1,-1,-1\n",
			frame, t.GetTrackID(), rect.X(), rect.Y(), rect.Width(), rect.Height(),
			t.GetScore())

		if err != nil {
			return fmt.Errorf("failed to write frame %d: %w", frame, err)
		}
	}

	return nil
}

// Flush writes any buffered data to the underlying writer
func (mw *Writer) Flush() error {
	return mw.w.Flush()
}
