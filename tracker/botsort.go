package tracker

import (
	"errors"
	"fmt"
	"image"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/swdee/go-botsort/gmc"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned by Track when the frame has no pixels
var ErrEmptyFrame = errors.New("frame is empty")

// duplicateThresh is the IoU distance under which a tracked and lost
// track are considered the same object
const duplicateThresh = float32(0.15)

// FrameStats summarises the association of a single frame
type FrameStats struct {
	HighDetections     int
	LowDetections      int
	FirstMatches       int
	SecondMatches      int
	UnconfirmedMatches int
	NewTracks          int
	Refound            int
	Lost               int
	Removed            int
	Tracked            int
}

// BoTSORT is a multi object tracker combining Kalman motion prediction,
// camera motion compensation and optional appearance embeddings
type BoTSORT struct {
	cfg Config
	// maximum number of frames a track can be lost before it is removed
	maxTimeLost int
	// current frame ID
	frameID int
	// per tracker source of track IDs
	ids *IDGenerator
	// tracks in state Tracked, confirmed and unconfirmed
	tracked []*Track
	// tracks in state Lost
	lost []*Track
	// IDs of removed tracks
	removed *roaring.Bitmap

	motion    MotionModel
	solver    Solver
	estimator gmc.Estimator
	extractor Extractor
	logger    *Logger

	// last frame summary
	stats FrameStats
}

// NewBoTSORT creates a tracker for a single video stream
func NewBoTSORT(cfg Config, opts ...Option) (*BoTSORT, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bs := &BoTSORT{
		cfg:         cfg,
		maxTimeLost: cfg.MaxTimeLost(),
		ids:         NewIDGenerator(),
		removed:     roaring.New(),
		motion:      DefaultKalmanFilter(),
		solver:      NewLAPJV(),
		logger:      NoopLogger(),
	}

	for _, opt := range opts {
		opt(bs)
	}

	if bs.estimator == nil {
		method, err := gmc.ParseMethod(cfg.GMCMethod)

		if err != nil {
			return nil, err
		}

		bs.estimator, err = gmc.New(method, gmc.DefaultParams())

		if err != nil {
			return nil, fmt.Errorf("failed to create camera motion estimator: %w", err)
		}
	}

	bs.logger.Info("tracker created",
		"gmc", cfg.GMCMethod,
		"reid", bs.extractor != nil,
		"max_time_lost", bs.maxTimeLost,
	)

	return bs, nil
}

// Close releases the camera motion estimator
func (bs *BoTSORT) Close() error {
	return bs.estimator.Close()
}

// Reset clears all tracks, the frame counter and track ID numbering
func (bs *BoTSORT) Reset() {
	bs.frameID = 0
	bs.ids.Reset()
	bs.tracked = nil
	bs.lost = nil
	bs.removed.Clear()
	bs.stats = FrameStats{}
	bs.estimator.Reset()
}

// FrameID returns the ID of the last processed frame, starting at 1
func (bs *BoTSORT) FrameID() int {
	return bs.frameID
}

// MaxTimeLost returns the number of frames a lost track is kept for
func (bs *BoTSORT) MaxTimeLost() int {
	return bs.maxTimeLost
}

// TrackedTracks returns the tracks in state Tracked, including unconfirmed
// ones
func (bs *BoTSORT) TrackedTracks() []*Track {
	return append([]*Track(nil), bs.tracked...)
}

// LostTracks returns the tracks in state Lost
func (bs *BoTSORT) LostTracks() []*Track {
	return append([]*Track(nil), bs.lost...)
}

// RemovedIDs returns the IDs of all removed tracks in ascending order
func (bs *BoTSORT) RemovedIDs() []int {

	ids := bs.removed.ToArray()
	out := make([]int, len(ids))

	for i, id := range ids {
		out[i] = int(id)
	}

	return out
}

// Stats returns the association summary of the last frame
func (bs *BoTSORT) Stats() FrameStats {
	return bs.stats
}

// stageResult holds the tracks touched by an association stage
type stageResult struct {
	activated []*Track
	refound   []*Track
	// unmatched tracks and detections in input order
	tracks []*Track
	dets   []*Track
}

// Track runs one frame of detections through the tracker and returns the
// tracks in state Tracked.  frame is used for camera motion compensation
// and appearance extraction.
func (bs *BoTSORT) Track(detections []Detection, frame gocv.Mat) ([]*Track, error) {

	if frame.Empty() || frame.Cols() == 0 || frame.Rows() == 0 {
		return nil, fmt.Errorf("tracking frame %d: %w", bs.frameID+1, ErrEmptyFrame)
	}

	// Step 1: ingest
	highDets, lowDets, err := bs.ingest(detections, frame)

	if err != nil {
		return nil, err
	}

	// every retained detection is masked out of the motion estimate
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	detRects := make([]image.Rectangle, 0, len(highDets)+len(lowDets))

	for _, set := range [][]*Track{highDets, lowDets} {
		for _, d := range set {
			detRects = append(detRects, d.GetRect().ImageRect(bounds))
		}
	}

	homography, err := bs.estimator.Apply(frame, detRects)

	if err != nil {
		return nil, fmt.Errorf("camera motion estimation failed: %w", err)
	}

	bs.frameID++
	log := bs.logger.WithFrame(bs.frameID)
	stats := FrameStats{
		HighDetections: len(highDets),
		LowDetections:  len(lowDets),
	}

	// Step 2: partition
	var unconfirmed, active []*Track

	for _, t := range bs.tracked {
		if t.IsActivated() {
			active = append(active, t)
		} else {
			unconfirmed = append(unconfirmed, t)
		}
	}

	// Step 3: predict and compensate
	pool := jointTracks(active, bs.lost)

	MultiPredict(pool, bs.motion)
	MultiGMC(pool, homography)
	MultiGMC(unconfirmed, homography)

	// Step 4: first association with high confidence detections
	cost, err := bs.fusedCost(pool, highDets)

	if err != nil {
		return nil, fmt.Errorf("first association: %w", err)
	}

	first, err := bs.associate(cost, pool, highDets, bs.cfg.MatchThresh)

	if err != nil {
		return nil, fmt.Errorf("first association: %w", err)
	}

	stats.FirstMatches = len(first.activated) + len(first.refound)

	// Step 5: second association with low confidence detections
	var remaining []*Track

	for _, t := range first.tracks {
		if t.GetState() == Tracked {
			remaining = append(remaining, t)
		}
	}

	second, err := bs.associate(IoUDistance(remaining, lowDets), remaining,
		lowDets, bs.cfg.SecondMatchThresh)

	if err != nil {
		return nil, fmt.Errorf("second association: %w", err)
	}

	stats.SecondMatches = len(second.activated) + len(second.refound)

	// Step 6: loss marking
	var lostNow []*Track

	for _, t := range second.tracks {
		if t.GetState() != Lost {
			t.MarkLost()
			lostNow = append(lostNow, t)
		}
	}

	// Step 7: unconfirmed reconciliation
	cost, err = bs.fusedCost(unconfirmed, first.dets)

	if err != nil {
		return nil, fmt.Errorf("unconfirmed association: %w", err)
	}

	third, err := bs.associate(cost, unconfirmed, first.dets, bs.cfg.UnconfirmedMatchThresh)

	if err != nil {
		return nil, fmt.Errorf("unconfirmed association: %w", err)
	}

	stats.UnconfirmedMatches = len(third.activated)

	var removedNow []*Track

	for _, t := range third.tracks {
		t.MarkRemoved()
		removedNow = append(removedNow, t)
	}

	// Step 8: new tracks
	var created []*Track

	for _, det := range third.dets {
		if det.GetScore() < bs.cfg.NewTrackThresh {
			continue
		}

		det.Activate(bs.motion, bs.frameID, bs.ids.GetNext())
		created = append(created, det)
	}

	stats.NewTracks = len(created)

	// Step 9: lifecycle sweep
	activated := make([]*Track, 0, len(first.activated)+len(second.activated)+
		len(third.activated)+len(created))
	activated = append(activated, first.activated...)
	activated = append(activated, second.activated...)
	activated = append(activated, third.activated...)
	activated = append(activated, created...)

	refound := append(first.refound, second.refound...)
	stats.Refound = len(refound)

	tracked := jointTracks(activated, refound)

	var lost []*Track

	for _, t := range jointTracks(subTracks(bs.lost, tracked), lostNow) {
		t.updateTimeLost(bs.frameID)

		if bs.frameID-t.GetFrameID() > bs.maxTimeLost {
			t.MarkRemoved()
			removedNow = append(removedNow, t)
			continue
		}

		lost = append(lost, t)
	}

	tracked, lost, dups := removeDuplicateTracks(tracked, lost)

	for _, t := range dups {
		t.MarkRemoved()
		removedNow = append(removedNow, t)
	}

	for _, t := range removedNow {
		bs.removed.Add(uint32(t.GetTrackID()))
	}

	bs.tracked = tracked
	bs.lost = lost

	// Step 10: output
	var output []*Track

	for _, t := range bs.tracked {
		if t.GetState() == Tracked {
			output = append(output, t)
		}
	}

	stats.Lost = len(lostNow)
	stats.Removed = len(removedNow)
	stats.Tracked = len(output)
	bs.stats = stats

	log.LogFrame(stats)

	return output, nil
}

// ingest clamps the detections to the frame, drops those at or below the
// low threshold, attaches appearance embeddings to the rest and splits them
// by confidence
func (bs *BoTSORT) ingest(detections []Detection, frame gocv.Mat) (high, low []*Track, err error) {

	var kept []Detection

	for _, det := range clampDetections(detections, frame.Cols(), frame.Rows()) {
		if det.Score > bs.cfg.TrackLowThresh {
			kept = append(kept, det)
		}
	}

	withReID := bs.extractor != nil

	if withReID {
		if err := bs.extractFeatures(kept, frame); err != nil {
			return nil, nil, err
		}
	}

	for _, det := range kept {
		track := newTrackFromDetection(det, bs.cfg.FeatureAlpha, withReID)

		if det.Score >= bs.cfg.TrackHighThresh {
			high = append(high, track)
		} else {
			low = append(low, track)
		}
	}

	return high, low, nil
}

// extractFeatures runs the extractor over detections that have no
// precomputed embedding
func (bs *BoTSORT) extractFeatures(dets []Detection, frame gocv.Mat) error {

	var (
		boxes []image.Rectangle
		index []int
	)

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	for i := range dets {
		if len(dets[i].Feature) > 0 {
			continue
		}

		boxes = append(boxes, dets[i].Rect.ImageRect(bounds))
		index = append(index, i)
	}

	if len(boxes) == 0 {
		return nil
	}

	feats, err := bs.extractor.Extract(frame, boxes)

	if err != nil {
		return fmt.Errorf("appearance extraction failed: %w", err)
	}

	if len(feats) != len(boxes) {
		return fmt.Errorf("appearance extraction returned %d embeddings for %d boxes",
			len(feats), len(boxes))
	}

	for k, i := range index {
		dets[i].Feature = feats[k]
	}

	return nil
}

// fusedCost builds the association cost between tracks and detections from
// IoU, detection confidence and, when enabled, appearance
func (bs *BoTSORT) fusedCost(tracks, dets []*Track) (*CostMatrix, error) {

	iou := IoUDistance(tracks, dets)
	geo := iou

	if bs.cfg.FuseScore {
		geo = FuseScore(iou, dets)
	}

	if bs.extractor == nil || geo.Empty() {
		return geo, nil
	}

	emb, err := FuseMotion(bs.motion, EmbeddingDistance(tracks, dets), tracks, dets, false)

	if err != nil {
		return nil, err
	}

	emb = GateAppearance(emb, iou, bs.cfg.ProximityThresh, bs.cfg.AppearanceThresh)

	return FuseIoUWithEmbedding(geo, emb, bs.cfg.Lambda), nil
}

// associate solves the cost matrix and applies the update or re-activate
// policy to each matched track
func (bs *BoTSORT) associate(cost *CostMatrix, tracks, dets []*Track,
	thresh float32) (stageResult, error) {

	var res stageResult

	assign, err := bs.solver.Solve(cost, thresh)

	if err != nil {
		return res, fmt.Errorf("assignment failed: %w", err)
	}

	for _, m := range assign.Matches {
		track := tracks[m[0]]
		det := dets[m[1]]

		if track.GetState() == Tracked {
			if err := track.Update(bs.motion, det, bs.frameID); err != nil {
				return res, err
			}

			res.activated = append(res.activated, track)
			continue
		}

		if err := track.ReActivate(bs.motion, det, bs.frameID, 0); err != nil {
			return res, err
		}

		res.refound = append(res.refound, track)
	}

	for _, i := range assign.UnmatchedRows {
		res.tracks = append(res.tracks, tracks[i])
	}

	for _, j := range assign.UnmatchedCols {
		res.dets = append(res.dets, dets[j])
	}

	return res, nil
}

// jointTracks combines two lists of tracks in order, skipping tracks of b
// whose ID is already in a
func jointTracks(a, b []*Track) []*Track {

	exists := make(map[int]struct{}, len(a)+len(b))
	res := make([]*Track, 0, len(a)+len(b))

	for _, t := range a {
		exists[t.GetTrackID()] = struct{}{}
		res = append(res, t)
	}

	for _, t := range b {
		if _, ok := exists[t.GetTrackID()]; ok {
			continue
		}

		exists[t.GetTrackID()] = struct{}{}
		res = append(res, t)
	}

	return res
}

// subTracks returns the tracks of a whose ID is not in b, preserving the
// order of a
func subTracks(a, b []*Track) []*Track {

	drop := make(map[int]struct{}, len(b))

	for _, t := range b {
		drop[t.GetTrackID()] = struct{}{}
	}

	var res []*Track

	for _, t := range a {
		if _, ok := drop[t.GetTrackID()]; !ok {
			res = append(res, t)
		}
	}

	return res
}

// removeDuplicateTracks finds tracked and lost tracks covering the same
// object and drops the one with the shorter history.  The dropped tracks
// are returned separately.
func removeDuplicateTracks(a, b []*Track) (aRes, bRes, dropped []*Track) {

	dist := IoUDistance(a, b)

	aDup := make([]bool, len(a))
	bDup := make([]bool, len(b))

	for i := range a {
		for j := range b {
			if dist.At(i, j) >= duplicateThresh {
				continue
			}

			timeP := a[i].GetFrameID() - a[i].GetStartFrameID()
			timeQ := b[j].GetFrameID() - b[j].GetStartFrameID()

			if timeP > timeQ {
				bDup[j] = true
			} else {
				aDup[i] = true
			}
		}
	}

	for i, t := range a {
		if aDup[i] {
			dropped = append(dropped, t)
		} else {
			aRes = append(aRes, t)
		}
	}

	for j, t := range b {
		if bDup[j] {
			dropped = append(dropped, t)
		} else {
			bRes = append(bRes, t)
		}
	}

	return aRes, bRes, dropped
}
