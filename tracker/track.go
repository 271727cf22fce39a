package tracker

import (
	"fmt"

	"github.com/swdee/go-botsort/gmc"
	"github.com/swdee/go-botsort/reid"
	"gonum.org/v1/gonum/mat"
)

// TrackState represents the lifecycle state of a track
type TrackState int

const (
	// New is a track created from a detection that has not been activated
	New TrackState = 0
	// Tracked is a track matched in the current frame
	Tracked TrackState = 1
	// Lost is a track that missed association and is coasting on motion
	// prediction only
	Lost TrackState = 2
	// Removed is terminal, the track is never predicted, matched or output
	Removed TrackState = 3
)

// String returns the state name
func (s TrackState) String() string {
	switch s {
	case New:
		return "new"
	case Tracked:
		return "tracked"
	case Lost:
		return "lost"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("TrackState(%d)", int(s))
}

// Track represents a single tracked object across frames
type Track struct {
	// mean state vector of the motion model
	mean StateMean
	// covariance matrix of the motion model
	covariance StateCov
	// bounding box derived from the mean, or the detection box before
	// activation
	rect Rect
	// current state of the track
	state TrackState
	// whether the track has been confirmed
	isActivated bool
	// detection score of the last associated detection
	score float32
	// unique ID for the track, 0 until activated
	trackID int
	// frame ID of the last update
	frameID int
	// frame ID when the track was activated
	startFrameID int
	// number of consecutive updates
	trackletLen int
	// frames since the last update while lost
	timeLost int
	// ID of the last associated detection
	detectionID int64
	// object class
	label int
	// feature is the last normalised ReID embedding
	feature []float32
	// smoothFeature is an EMA smoothed embedding
	smoothFeature []float32
	// alpha is the EMA momentum
	alpha float32
	// hasFeature is set when appearance tracking is enabled for the track
	hasFeature bool
}

// NewTrack creates a tentative track in state New from a detection box
func NewTrack(rect Rect, score float32, label int, detectionID int64) *Track {
	return &Track{
		mean:        make(StateMean, 8),
		covariance:  StateCov{mat.NewDense(8, 8, nil)},
		rect:        rect.Clone(),
		state:       New,
		score:       score,
		detectionID: detectionID,
		label:       label,
	}
}

// newTrackFromDetection creates a tentative track from an ingested detection
func newTrackFromDetection(det Detection, alpha float32, withFeature bool) *Track {

	t := NewTrack(det.Rect, det.Score, det.Label, det.ID)

	if withFeature {
		t.WithFeature(det.Feature, alpha)
	}

	return t
}

// WithFeature enables appearance tracking and sets the initial embedding
func (t *Track) WithFeature(feature []float32, alpha float32) {
	t.hasFeature = true
	t.alpha = alpha
	t.UpdateFeatures(feature)
}

// GetRect returns the bounding box of the tracked object
func (t *Track) GetRect() *Rect {
	return &t.rect
}

// GetState returns the current state of the track
func (t *Track) GetState() TrackState {
	return t.state
}

// IsActivated returns whether the track is confirmed
func (t *Track) IsActivated() bool {
	return t.isActivated
}

// GetScore returns the last detection score
func (t *Track) GetScore() float32 {
	return t.score
}

// GetTrackID returns the unique ID for the track
func (t *Track) GetTrackID() int {
	return t.trackID
}

// GetFrameID returns the frame ID of the last update
func (t *Track) GetFrameID() int {
	return t.frameID
}

// GetStartFrameID returns the frame ID when the track was activated
func (t *Track) GetStartFrameID() int {
	return t.startFrameID
}

// GetTrackletLength returns the number of consecutive updates
func (t *Track) GetTrackletLength() int {
	return t.trackletLen
}

// GetTimeLost returns the number of frames the track has been lost for
func (t *Track) GetTimeLost() int {
	return t.timeLost
}

// GetDetectionID returns the ID of the last associated detection
func (t *Track) GetDetectionID() int64 {
	return t.detectionID
}

// GetLabel returns the object class
func (t *Track) GetLabel() int {
	return t.label
}

// GetFeature returns the last ReID embedding
func (t *Track) GetFeature() []float32 {
	return t.feature
}

// GetSmoothFeature returns the EMA smoothed ReID embedding
func (t *Track) GetSmoothFeature() []float32 {
	return t.smoothFeature
}

// GetMean returns a copy of the motion state mean
func (t *Track) GetMean() StateMean {
	return append(StateMean(nil), t.mean...)
}

// xyah returns the measurement used to initiate or correct the filter
func (t *Track) xyah() DetectBox {
	return DetectBox(t.rect.GetXyah())
}

// Activate starts a new tracklet with the given ID.  Only tracks started on
// the first frame are confirmed immediately, others must be matched again
// on the next frame.
func (t *Track) Activate(mm MotionModel, frameID, trackID int) {

	mm.Initiate(t.mean, &t.covariance, t.xyah())

	t.updateRect()

	t.state = Tracked
	t.isActivated = frameID == 1
	t.trackID = trackID
	t.frameID = frameID
	t.startFrameID = frameID
	t.trackletLen = 0
	t.timeLost = 0
}

// ReActivate resumes a lost track with a new detection.  The track keeps
// its ID unless newTrackID is positive.
func (t *Track) ReActivate(mm MotionModel, newTrack *Track, frameID, newTrackID int) error {

	if err := mm.Update(t.mean, &t.covariance, newTrack.xyah()); err != nil {
		return fmt.Errorf("error re-activating track %d: %w", t.trackID, err)
	}

	t.updateRect()
	t.refresh(newTrack, frameID)
	t.trackletLen = 0

	if newTrackID > 0 {
		t.trackID = newTrackID
	}

	return nil
}

// Update corrects the track with a matched detection
func (t *Track) Update(mm MotionModel, newTrack *Track, frameID int) error {

	if err := mm.Update(t.mean, &t.covariance, newTrack.xyah()); err != nil {
		return fmt.Errorf("error updating track %d: %w", t.trackID, err)
	}

	t.updateRect()
	t.refresh(newTrack, frameID)
	t.trackletLen++

	return nil
}

// refresh copies the detection attributes after a successful correction
func (t *Track) refresh(newTrack *Track, frameID int) {
	t.state = Tracked
	t.isActivated = true
	t.score = newTrack.score
	t.label = newTrack.label
	t.detectionID = newTrack.detectionID
	t.frameID = frameID
	t.timeLost = 0

	t.UpdateFeatures(newTrack.feature)
}

// Predict advances the track one frame with the motion model.  Removed
// tracks are left untouched.
func (t *Track) Predict(mm MotionModel) {

	if t.state == Removed {
		return
	}

	if t.state != Tracked {
		// freeze height velocity while coasting
		t.mean[7] = 0
	}

	mm.Predict(t.mean, &t.covariance)

	t.updateRect()
}

// MultiPredict predicts every track in the list
func MultiPredict(tracks []*Track, mm MotionModel) {
	for _, t := range tracks {
		t.Predict(mm)
	}
}

// ApplyHomography remaps the track's position, velocity and their
// covariance through the camera motion h
func (t *Track) ApplyHomography(h gmc.Homography) {

	if t.state == Removed || h.IsIdentity() {
		return
	}

	r := h.Linear()
	tx, ty := h.Translation()

	// transform acts on the (x, y) and (vx, vy) pairs of the state
	tr := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		tr.Set(i, i, 1)
	}

	for _, off := range []int{0, 4} {
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				tr.Set(off+i, off+j, r.At(i, j))
			}
		}
	}

	meanVec := mat.NewVecDense(8, meanToFloat64(t.mean))
	out := mat.NewVecDense(8, nil)
	out.MulVec(tr, meanVec)

	for i := 0; i < 8; i++ {
		t.mean[i] = float32(out.AtVec(i))
	}

	t.mean[0] += float32(tx)
	t.mean[1] += float32(ty)

	cov := mat.NewDense(8, 8, nil)
	cov.Mul(tr, t.covariance.Dense)
	cov.Mul(cov, tr.T())
	t.covariance.Dense = cov

	t.updateRect()
}

// MultiGMC applies camera motion compensation to every track in the list
func MultiGMC(tracks []*Track, h gmc.Homography) {

	if h.IsIdentity() {
		return
	}

	for _, t := range tracks {
		t.ApplyHomography(h)
	}
}

// MarkLost marks a tracked track as lost.  Other states are unchanged.
func (t *Track) MarkLost() {
	if t.state == Tracked {
		t.state = Lost
	}
}

// MarkRemoved marks the track as removed, this is terminal
func (t *Track) MarkRemoved() {
	t.state = Removed
}

// updateTimeLost records how many frames have passed since the last update
func (t *Track) updateTimeLost(frameID int) {
	t.timeLost = frameID - t.frameID
}

// updateRect updates the bounding box of the tracked object based on the
// state mean
func (t *Track) updateRect() {
	t.rect.SetWidth(t.mean[2] * t.mean[3])
	t.rect.SetHeight(t.mean[3])
	t.rect.SetX(t.mean[0] - t.rect.Width()/2)
	t.rect.SetY(t.mean[1] - t.rect.Height()/2)
}

// UpdateFeatures folds a new embedding into the track's smoothed embedding
func (t *Track) UpdateFeatures(feat []float32) {

	if !t.hasFeature || len(feat) == 0 {
		return
	}

	normFeat := reid.NormalizeVec(feat)
	t.feature = normFeat

	if t.smoothFeature == nil || len(t.smoothFeature) != len(normFeat) {
		t.smoothFeature = make([]float32, len(normFeat))
		copy(t.smoothFeature, normFeat)
		return
	}

	for i := range normFeat {
		t.smoothFeature[i] = t.alpha*t.smoothFeature[i] + (1-t.alpha)*normFeat[i]
	}

	t.smoothFeature = reid.NormalizeVec(t.smoothFeature)
}
