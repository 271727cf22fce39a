package tracker

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// convertDetections takes the matrix of YOLO object detections and converts
// them into tracker detections
func convertDetections(detections []detection, useLabel int) []Detection {
	var dets []Detection

	for _, det := range detections {
		dets = append(dets, NewDetection(
			NewRect(det.x1, det.y1, det.x2-det.x1, det.y2-det.y1),
			useLabel, det.score, det.detectionID,
		))
	}

	return dets
}

// almostEqual checks if two float32 values are approximately equal
func almostEqual(a, b, tolerance float32) bool {
	return float32(math.Abs(float64(a)-float64(b))) <= tolerance
}

// newFrame returns a blank BGR frame of the given size
func newFrame(t *testing.T, width, height int) gocv.Mat {
	t.Helper()

	frame := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	return frame
}

// testConfig returns the default config without camera motion compensation
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GMCMethod = "none"
	return cfg
}

// newTestTracker creates a tracker for tests, failing on error
func newTestTracker(t *testing.T, cfg Config, opts ...Option) *BoTSORT {
	t.Helper()

	bs, err := NewBoTSORT(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	return bs
}

// detectionFrame holds detection data for a single frame.
type detectionFrame struct {
	frameIdx       int
	detections     []detection
	expectedTracks []struct {
		trackID     int
		tlx, tly    float32
		brx, bry    float32
		prob        float32
		detectionID int64
	}
}

// Detection represents the detection data from YOLO model
type detection struct {
	x1, y1, x2, y2, score float32
	detectionID           int64
}

// TestBoTSORTSequence tests tracker results from a recorded sequence of
// detections.  Scores are percentages, so all detections are high
// confidence and score fusion is disabled.
func TestBoTSORTSequence(t *testing.T) {

	// tolerance for float comparisons
	const tolerance = 1e-2

	cfg := testConfig()
	cfg.FuseScore = false

	bs := newTestTracker(t, cfg)
	img := newFrame(t, 640, 640)

	// Define detection data and expected outputs for each frame
	frames := []detectionFrame{
		{
			frameIdx: 0,
			detections: []detection{
				{79, 205, 169, 609, 85.10, 1},
				{196, 222, 258, 451, 83.98, 2},
				{270, 247, 331, 456, 82.81, 3},
				{471, 205, 584, 638, 82.61, 4},
				{158, 302, 201, 506, 78.12, 5},
				{328, 234, 381, 445, 76.65, 6},
				{364, 218, 434, 450, 76.12, 7},
				{347, 148, 378, 238, 46.30, 8},
				{296, 184, 342, 408, 43.97, 9},
				{132, 201, 176, 319, 41.19, 10},
				{69, 191, 120, 391, 31.02, 11},
				{627, 237, 640, 284, 24.46, 12},
			},
			expectedTracks: []struct {
				trackID     int
				tlx, tly    float32
				brx, bry    float32
				prob        float32
				detectionID int64
			}{
				{1, 79.00000, 205.00000, 169.00000, 609.00000, 85.10, 1},
				{2, 196.00000, 222.00000, 258.00000, 451.00000, 83.98, 2},
				{3, 270.00000, 247.00000, 331.00000, 456.00000, 82.81, 3},
				{4, 471.00000, 205.00000, 584.00000, 638.00000, 82.61, 4},
				{5, 158.00000, 302.00000, 201.00000, 506.00000, 78.12, 5},
				{6, 328.00000, 234.00000, 381.00000, 445.00000, 76.65, 6},
				{7, 364.00000, 218.00000, 434.00000, 450.00000, 76.12, 7},
				{8, 347.00000, 148.00000, 378.00000, 238.00000, 46.30, 8},
				{9, 296.00000, 184.00000, 342.00000, 408.00000, 43.97, 9},
				{10, 132.00000, 201.00000, 176.00000, 319.00000, 41.19, 10},
				{11, 69.00000, 191.00000, 120.00000, 391.00000, 31.02, 11},
				{12, 627.00000, 237.00000, 640.00000, 284.00000, 24.46, 12},
			},
		},
		{
			frameIdx: 1,
			detections: []detection{
				{471, 212, 584, 633, 83.76, 13},
				{197, 219, 259, 453, 83.59, 14},
				{271, 242, 331, 457, 81.64, 15},
				{83, 220, 166, 610, 78.91, 16},
				{157, 303, 204, 502, 77.43, 17},
				{364, 218, 434, 450, 74.97, 18},
				{327, 232, 383, 446, 73.54, 19},
				{346, 149, 377, 238, 50.58, 20},
				{70, 181, 125, 397, 43.71, 21},
				{297, 185, 343, 416, 42.02, 22},
				{133, 206, 178, 319, 37.11, 23},
				{589, 280, 639, 554, 34.46, 24},
			},
			expectedTracks: []struct {
				trackID     int
				tlx, tly    float32
				brx, bry    float32
				prob        float32
				detectionID int64
			}{
				{1, 80.82532, 218.01653, 168.04245, 609.86774, 78.91, 16},
				{2, 196.29364, 219.39668, 259.44189, 452.73553, 83.59, 14},
				{3, 269.70096, 242.66116, 332.16684, 456.86777, 81.64, 15},
				{4, 472.32794, 211.07437, 582.67206, 633.66113, 83.76, 13},
				{5, 159.27533, 302.86774, 201.46021, 502.52890, 77.43, 17},
				{6, 328.08496, 232.26445, 381.78284, 445.86774, 73.54, 19},
				{7, 364.00000, 218.00000, 434.00000, 450.00000, 74.97, 18},
				{8, 346.27829, 148.86777, 376.98615, 238.00000, 50.58, 20},
				{9, 296.25809, 184.86777, 343.47742, 414.94214, 42.02, 22},
				{10, 134.08234, 205.33885, 176.52097, 319.00000, 37.11, 23},
				{11, 69.83383, 182.32233, 124.37277, 396.20660, 43.71, 21},
				{13, 589.00000, 280.00000, 639.00000, 554.00000, 34.46, 24},
			},
		},
		{
			frameIdx: 2,
			detections: []detection{
				{472, 204, 584, 637, 85.21, 25},
				{199, 221, 260, 450, 81.64, 26},
				{158, 303, 205, 502, 78.59, 27},
				{84, 228, 167, 609, 77.73, 28},
				{269, 240, 332, 458, 77.34, 29},
				{363, 218, 433, 450, 75.57, 30},
				{329, 233, 381, 445, 73.63, 31},
				{139, 206, 179, 321, 46.31, 32},
				{78, 181, 134, 385, 44.66, 33},
				{296, 185, 346, 411, 42.80, 34},
				{589, 263, 640, 571, 38.81, 35},
				{346, 149, 377, 236, 33.45, 36},
			},
			expectedTracks: []struct {
				trackID     int
				tlx, tly    float32
				brx, bry    float32
				prob        float32
				detectionID int64
			}{
				{1, 82.73601, 226.55103, 167.85870, 609.22614, 77.73, 28},
				{2, 198.03925, 220.49619, 260.31458, 450.71359, 81.64, 26},
				{3, 268.93002, 240.37213, 332.31552, 457.78845, 77.34, 29},
				{4, 471.73502, 205.81052, 584.05249, 636.07104, 85.21, 25},
				{5, 160.21704, 303.01587, 202.38788, 501.93652, 78.59, 27},
				{6, 328.31689, 232.74213, 381.69986, 445.24115, 73.63, 31},
				{7, 363.22046, 218.00000, 433.22046, 450.00000, 75.57, 30},
				{8, 346.41031, 149.01614, 376.55737, 236.43452, 33.45, 36},
				{9, 297.41403, 185.01706, 344.16153, 412.28278, 42.80, 34},
				{10, 136.95946, 206.07745, 179.62943, 320.58356, 46.31, 32},
				{11, 77.51575, 180.81949, 130.46681, 388.02057, 44.66, 33},
				{13, 586.94348, 266.39999, 641.85657, 567.59998, 38.81, 35},
			},
		},
	}

	// Process each frame's detections
	for _, frame := range frames {

		// hard coded classification label for now as data was restricted
		// to the same class (person)
		dets := convertDetections(frame.detections, 0)

		trackedObjects, err := bs.Track(dets, img)

		if err != nil {
			t.Errorf("error tracking frame %d: %v", frame.frameIdx, err)
			continue
		}

		// Check if the output matches the expected values
		if len(trackedObjects) != len(frame.expectedTracks) {
			t.Errorf("Frame %d: expected %d tracked objects, got %d", frame.frameIdx, len(frame.expectedTracks), len(trackedObjects))
			continue
		}

		for i, track := range trackedObjects {

			expectedTrack := frame.expectedTracks[i]

			if track.GetTrackID() != expectedTrack.trackID ||
				!almostEqual(track.GetRect().TLX(), expectedTrack.tlx, tolerance) ||
				!almostEqual(track.GetRect().TLY(), expectedTrack.tly, tolerance) ||
				!almostEqual(track.GetRect().BRX(), expectedTrack.brx, tolerance) ||
				!almostEqual(track.GetRect().BRY(), expectedTrack.bry, tolerance) ||
				!almostEqual(track.GetScore(), expectedTrack.prob, tolerance) ||
				track.GetDetectionID() != expectedTrack.detectionID {

				t.Errorf("Frame %d: expected track %v, got track %v", frame.frameIdx, expectedTrack, track)
			}
		}
	}
}

// stubExtractor returns a fixed embedding for every box
type stubExtractor struct {
	feature []float32
	calls   int
	boxes   int
	err     error
}

func (s *stubExtractor) Extract(frame gocv.Mat, boxes []image.Rectangle) ([][]float32, error) {
	s.calls++
	s.boxes += len(boxes)

	if s.err != nil {
		return nil, s.err
	}

	out := make([][]float32, len(boxes))

	for i := range out {
		out[i] = append([]float32(nil), s.feature...)
	}

	return out, nil
}

// checkPartition verifies every track is in exactly one collection and in
// the state that collection implies
func checkPartition(t *testing.T, bs *BoTSORT) {
	t.Helper()

	seen := make(map[int]string)

	for _, tr := range bs.TrackedTracks() {
		assert.Equal(t, Tracked, tr.GetState(), "track %d in tracked collection", tr.GetTrackID())
		seen[tr.GetTrackID()] = "tracked"
	}

	for _, tr := range bs.LostTracks() {
		assert.Equal(t, Lost, tr.GetState(), "track %d in lost collection", tr.GetTrackID())
		_, dup := seen[tr.GetTrackID()]
		assert.False(t, dup, "track %d in lost and %s", tr.GetTrackID(), seen[tr.GetTrackID()])
		seen[tr.GetTrackID()] = "lost"
	}

	for _, id := range bs.RemovedIDs() {
		_, dup := seen[id]
		assert.False(t, dup, "track %d removed and %s", id, seen[id])
	}
}

func TestTrackSingleMatch(t *testing.T) {

	bs := newTestTracker(t, testConfig())
	img := newFrame(t, 640, 480)

	out, err := bs.Track([]Detection{
		NewDetection(NewRect(10, 10, 20, 20), 0, 0.9, 1),
	}, img)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsActivated())

	id := out[0].GetTrackID()

	out, err = bs.Track([]Detection{
		NewDetection(NewRect(11, 11, 20, 20), 0, 0.9, 2),
	}, img)

	require.NoError(t, err)
	require.Len(t, out, 1)

	track := out[0]
	assert.Equal(t, id, track.GetTrackID())
	assert.Equal(t, Tracked, track.GetState())
	assert.Equal(t, int64(2), track.GetDetectionID())
	assert.Equal(t, 1, bs.Stats().FirstMatches)

	assert.Greater(t, track.GetRect().TLX(), float32(10))
	assert.LessOrEqual(t, track.GetRect().TLX(), float32(11))
	assert.Greater(t, track.GetRect().TLY(), float32(10))
	assert.LessOrEqual(t, track.GetRect().TLY(), float32(11))

	checkPartition(t, bs)
}

func TestTrackLostThenRemoved(t *testing.T) {

	cfg := testConfig()
	cfg.TrackBuffer = 3

	bs := newTestTracker(t, cfg)
	img := newFrame(t, 640, 480)

	require.Equal(t, 3, bs.MaxTimeLost())

	out, err := bs.Track([]Detection{
		NewDetection(NewRect(100, 100, 40, 80), 0, 0.9, 1),
	}, img)

	require.NoError(t, err)
	require.Len(t, out, 1)

	id := out[0].GetTrackID()

	// lost duration exceeds max time lost on frame 5
	for frame := 2; frame <= 5; frame++ {
		out, err = bs.Track(nil, img)
		require.NoError(t, err)
		assert.Empty(t, out, "frame %d", frame)

		checkPartition(t, bs)

		if frame < 5 {
			lost := bs.LostTracks()
			require.Len(t, lost, 1, "frame %d", frame)
			assert.Equal(t, id, lost[0].GetTrackID())
			assert.Equal(t, frame-1, lost[0].GetTimeLost())
			assert.Empty(t, bs.RemovedIDs())
			continue
		}

		assert.Empty(t, bs.LostTracks())
		assert.Equal(t, []int{id}, bs.RemovedIDs())
	}
}

func TestTrackRefound(t *testing.T) {

	bs := newTestTracker(t, testConfig())
	img := newFrame(t, 640, 480)

	det := NewDetection(NewRect(200, 100, 50, 120), 1, 0.8, 1)

	out, err := bs.Track([]Detection{det}, img)
	require.NoError(t, err)
	require.Len(t, out, 1)

	id := out[0].GetTrackID()

	out, err = bs.Track(nil, img)
	require.NoError(t, err)
	assert.Empty(t, out)
	require.Len(t, bs.LostTracks(), 1)

	out, err = bs.Track([]Detection{det}, img)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, id, out[0].GetTrackID())
	assert.Equal(t, 1, bs.Stats().Refound)
	assert.Empty(t, bs.LostTracks())
	assert.Equal(t, 0, out[0].GetTimeLost())

	checkPartition(t, bs)
}

func TestTrackSecondAssociation(t *testing.T) {

	bs := newTestTracker(t, testConfig())
	img := newFrame(t, 640, 480)

	out, err := bs.Track([]Detection{
		NewDetection(NewRect(300, 200, 60, 120), 0, 0.9, 1),
	}, img)

	require.NoError(t, err)
	require.Len(t, out, 1)

	// occluded object reported with low confidence
	out, err = bs.Track([]Detection{
		NewDetection(NewRect(301, 200, 60, 120), 0, 0.3, 2),
	}, img)

	require.NoError(t, err)
	require.Len(t, out, 1)

	stats := bs.Stats()
	assert.Equal(t, 0, stats.FirstMatches)
	assert.Equal(t, 1, stats.SecondMatches)
	assert.Equal(t, 1, stats.LowDetections)
	assert.Equal(t, float32(0.3), out[0].GetScore())
	assert.Equal(t, int64(2), out[0].GetDetectionID())
}

func TestTrackUnconfirmed(t *testing.T) {

	bs := newTestTracker(t, testConfig())
	img := newFrame(t, 640, 480)

	first := NewDetection(NewRect(10, 10, 40, 80), 0, 0.9, 1)
	second := NewDetection(NewRect(400, 200, 40, 80), 0, 0.9, 2)

	_, err := bs.Track([]Detection{first}, img)
	require.NoError(t, err)

	// tracks started after the first frame are unconfirmed
	out, err := bs.Track([]Detection{first, second}, img)
	require.NoError(t, err)
	require.Len(t, out, 2)

	newTrack := out[1]
	assert.Equal(t, 2, newTrack.GetTrackID())
	assert.False(t, newTrack.IsActivated())
	assert.Equal(t, 1, bs.Stats().NewTracks)

	out, err = bs.Track([]Detection{first, second}, img)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, 1, bs.Stats().UnconfirmedMatches)
	assert.Equal(t, 2, out[1].GetTrackID())
	assert.True(t, out[1].IsActivated())

	checkPartition(t, bs)
}

func TestTrackUnconfirmedRemoved(t *testing.T) {

	bs := newTestTracker(t, testConfig())
	img := newFrame(t, 640, 480)

	first := NewDetection(NewRect(10, 10, 40, 80), 0, 0.9, 1)
	second := NewDetection(NewRect(400, 200, 40, 80), 0, 0.9, 2)

	_, err := bs.Track([]Detection{first}, img)
	require.NoError(t, err)

	_, err = bs.Track([]Detection{first, second}, img)
	require.NoError(t, err)

	out, err := bs.Track([]Detection{first}, img)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, 1, out[0].GetTrackID())
	assert.Equal(t, []int{2}, bs.RemovedIDs())
	assert.Len(t, bs.TrackedTracks(), 1)
	assert.Empty(t, bs.LostTracks())

	checkPartition(t, bs)
}

func TestTrackIDsNeverReused(t *testing.T) {

	cfg := testConfig()
	cfg.TrackBuffer = 1

	bs := newTestTracker(t, cfg)
	img := newFrame(t, 640, 480)

	seen := make(map[int]bool)
	det := NewDetection(NewRect(50, 50, 40, 80), 0, 0.9, 1)

	for i := 0; i < 4; i++ {
		out, err := bs.Track([]Detection{det}, img)
		require.NoError(t, err)
		require.Len(t, out, 1)

		id := out[0].GetTrackID()

		assert.False(t, seen[id], "track id %d reused", id)
		assert.Equal(t, id, bs.ids.Last())
		seen[id] = true

		// drop the track entirely before the next appearance
		for j := 0; j < 3; j++ {
			_, err = bs.Track(nil, img)
			require.NoError(t, err)
		}

		assert.Contains(t, bs.RemovedIDs(), id)
		checkPartition(t, bs)
	}

	assert.Len(t, seen, 4)
}

func TestTrackEmptyInput(t *testing.T) {

	bs := newTestTracker(t, testConfig())
	img := newFrame(t, 640, 480)

	out, err := bs.Track(nil, img)
	require.NoError(t, err)

	assert.Empty(t, out)
	assert.Empty(t, bs.TrackedTracks())
	assert.Empty(t, bs.LostTracks())
	assert.Empty(t, bs.RemovedIDs())
	assert.Equal(t, 1, bs.FrameID())
}

func TestTrackThresholdBoundary(t *testing.T) {

	cfg := testConfig()
	cfg.NewTrackThresh = cfg.TrackHighThresh

	bs := newTestTracker(t, cfg)
	img := newFrame(t, 640, 480)

	out, err := bs.Track([]Detection{
		NewDetection(NewRect(10, 10, 40, 80), 0, cfg.TrackHighThresh, 1),
		NewDetection(NewRect(200, 10, 40, 80), 0, 0.1, 2),
		NewDetection(NewRect(400, 10, 40, 80), 0, 0.11, 3),
	}, img)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].GetDetectionID())

	stats := bs.Stats()
	assert.Equal(t, 1, stats.HighDetections)
	assert.Equal(t, 1, stats.LowDetections)
}

func TestTrackClampsWithoutMutatingInput(t *testing.T) {

	bs := newTestTracker(t, testConfig())
	img := newFrame(t, 320, 240)

	dets := []Detection{
		NewDetection(NewRect(-5, -8, 400, 300), 0, 0.9, 1),
	}

	out, err := bs.Track(dets, img)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, NewRect(-5, -8, 400, 300), dets[0].Rect)

	rect := out[0].GetRect()
	assert.InDelta(t, 0, rect.TLX(), 1e-3)
	assert.InDelta(t, 0, rect.TLY(), 1e-3)
	assert.InDelta(t, 319, rect.Width(), 1e-3)
	assert.InDelta(t, 239, rect.Height(), 1e-3)
}

func TestTrackEmptyFrame(t *testing.T) {

	bs := newTestTracker(t, testConfig())

	empty := gocv.NewMat()
	defer empty.Close()

	_, err := bs.Track([]Detection{
		NewDetection(NewRect(10, 10, 40, 80), 0, 0.9, 1),
	}, empty)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyFrame))
	assert.Equal(t, 0, bs.FrameID())
	assert.Empty(t, bs.TrackedTracks())
}

func TestTrackReset(t *testing.T) {

	bs := newTestTracker(t, testConfig())
	img := newFrame(t, 640, 480)

	det := NewDetection(NewRect(10, 10, 40, 80), 0, 0.9, 1)

	_, err := bs.Track([]Detection{det}, img)
	require.NoError(t, err)

	bs.Reset()

	assert.Equal(t, 0, bs.FrameID())
	assert.Equal(t, 0, bs.ids.Last())
	assert.Empty(t, bs.TrackedTracks())

	out, err := bs.Track([]Detection{det}, img)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].GetTrackID())
	assert.True(t, out[0].IsActivated())
}

func TestTrackWithExtractor(t *testing.T) {

	ext := &stubExtractor{feature: []float32{1, 0, 0, 0}}

	bs := newTestTracker(t, testConfig(), WithExtractor(ext))
	img := newFrame(t, 640, 480)

	withFeature := NewDetection(NewRect(300, 10, 40, 80), 0, 0.9, 2)
	withFeature.Feature = []float32{0, 1, 0, 0}

	out, err := bs.Track([]Detection{
		NewDetection(NewRect(10, 10, 40, 80), 0, 0.9, 1),
		withFeature,
		NewDetection(NewRect(500, 10, 40, 80), 0, 0.3, 3),
	}, img)

	require.NoError(t, err)
	require.Len(t, out, 2)

	// every retained detection without an embedding is extracted in one
	// call, low confidence ones included
	assert.Equal(t, 1, ext.calls)
	assert.Equal(t, 2, ext.boxes)

	assert.Equal(t, []float32{1, 0, 0, 0}, out[0].GetSmoothFeature())
	assert.Equal(t, []float32{0, 1, 0, 0}, out[1].GetSmoothFeature())

	out, err = bs.Track([]Detection{
		NewDetection(NewRect(12, 10, 40, 80), 0, 0.9, 4),
	}, img)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].GetTrackID())
}

func TestTrackSecondAssociationUpdatesEmbedding(t *testing.T) {

	bs := newTestTracker(t, testConfig(), WithExtractor(&stubExtractor{}))
	img := newFrame(t, 640, 480)

	first := NewDetection(NewRect(300, 200, 60, 120), 0, 0.9, 1)
	first.Feature = []float32{1, 0, 0, 0}

	out, err := bs.Track([]Detection{first}, img)
	require.NoError(t, err)
	require.Len(t, out, 1)

	occluded := NewDetection(NewRect(301, 200, 60, 120), 0, 0.3, 2)
	occluded.Feature = []float32{0, 1, 0, 0}

	out, err = bs.Track([]Detection{occluded}, img)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, bs.Stats().SecondMatches)

	// smoothed embedding moves toward the low confidence observation
	alpha := testConfig().FeatureAlpha
	norm := float32(math.Sqrt(float64(alpha*alpha + (1-alpha)*(1-alpha))))

	smooth := out[0].GetSmoothFeature()
	require.Len(t, smooth, 4)
	assert.InDelta(t, alpha/norm, smooth[0], 1e-5)
	assert.InDelta(t, (1-alpha)/norm, smooth[1], 1e-5)
	assert.Equal(t, []float32{0, 1, 0, 0}, out[0].GetFeature())
}

func TestTrackLowThresholdConfig(t *testing.T) {

	cfg := testConfig()
	cfg.TrackLowThresh = 0.3

	bs := newTestTracker(t, cfg)
	img := newFrame(t, 640, 480)

	_, err := bs.Track([]Detection{
		NewDetection(NewRect(300, 200, 60, 120), 0, 0.9, 1),
	}, img)
	require.NoError(t, err)

	// 0.35 is above the configured low threshold and keeps the track in
	// the second stage
	out, err := bs.Track([]Detection{
		NewDetection(NewRect(301, 200, 60, 120), 0, 0.35, 2),
	}, img)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].GetTrackID())
	assert.Equal(t, 1, bs.Stats().SecondMatches)

	// 0.2 is discarded so the track is lost
	out, err = bs.Track([]Detection{
		NewDetection(NewRect(301, 200, 60, 120), 0, 0.2, 3),
	}, img)
	require.NoError(t, err)
	assert.Empty(t, out)

	stats := bs.Stats()
	assert.Equal(t, 0, stats.LowDetections)
	assert.Equal(t, 0, stats.SecondMatches)
	assert.Equal(t, 1, stats.Lost)
}

// crossingFrames returns two tracks established on frame 1 and, for frame
// 2, detections where overlap alone pairs each track with the detection
// carrying the other track's embedding
func crossingFrames() (frame1, frame2 []Detection) {

	a := NewDetection(NewRect(100, 100, 100, 100), 0, 0.9, 1)
	a.Feature = []float32{1, 0, 0, 0}

	b := NewDetection(NewRect(140, 100, 100, 100), 0, 0.9, 2)
	b.Feature = []float32{0, 1, 0, 0}

	nearA := NewDetection(NewRect(115, 100, 100, 100), 0, 0.9, 3)
	nearA.Feature = []float32{0, 1, 0, 0}

	nearB := NewDetection(NewRect(125, 100, 100, 100), 0, 0.9, 4)
	nearB.Feature = []float32{1, 0, 0, 0}

	return []Detection{a, b}, []Detection{nearA, nearB}
}

// detectionIDs maps track ID to the matched detection ID
func detectionIDs(tracks []*Track) map[int]int64 {
	ids := make(map[int]int64, len(tracks))

	for _, t := range tracks {
		ids[t.GetTrackID()] = t.GetDetectionID()
	}

	return ids
}

func TestTrackAppearanceDecidesMatch(t *testing.T) {

	cfg := testConfig()
	cfg.Lambda = 0.5

	frame1, frame2 := crossingFrames()
	img := newFrame(t, 640, 480)

	t.Run("overlap only", func(t *testing.T) {
		bs := newTestTracker(t, cfg)

		_, err := bs.Track(frame1, img)
		require.NoError(t, err)

		out, err := bs.Track(frame2, img)
		require.NoError(t, err)
		require.Len(t, out, 2)

		assert.Equal(t, map[int]int64{1: 3, 2: 4}, detectionIDs(out))
	})

	t.Run("with appearance", func(t *testing.T) {
		bs := newTestTracker(t, cfg, WithExtractor(&stubExtractor{}))

		_, err := bs.Track(frame1, img)
		require.NoError(t, err)

		out, err := bs.Track(frame2, img)
		require.NoError(t, err)
		require.Len(t, out, 2)

		assert.Equal(t, map[int]int64{1: 4, 2: 3}, detectionIDs(out))
		assert.Equal(t, 2, bs.Stats().FirstMatches)
	})
}

func TestTrackExtractorError(t *testing.T) {

	ext := &stubExtractor{err: errors.New("model failure")}

	bs := newTestTracker(t, testConfig(), WithExtractor(ext))
	img := newFrame(t, 640, 480)

	_, err := bs.Track([]Detection{
		NewDetection(NewRect(10, 10, 40, 80), 0, 0.9, 1),
	}, img)

	require.Error(t, err)
	assert.Equal(t, 0, bs.FrameID())
	assert.Empty(t, bs.TrackedTracks())
}

func TestRemoveDuplicateTracks(t *testing.T) {

	kf := DefaultKalmanFilter()

	older := NewTrack(NewRect(10, 10, 40, 80), 0.9, 0, 1)
	older.Activate(kf, 1, 1)

	for frame := 2; frame <= 5; frame++ {
		require.NoError(t, older.Update(kf, NewTrack(NewRect(10, 10, 40, 80), 0.9, 0, 1), frame))
	}

	younger := NewTrack(NewRect(11, 10, 40, 80), 0.9, 0, 2)
	younger.Activate(kf, 5, 2)

	other := NewTrack(NewRect(300, 10, 40, 80), 0.9, 0, 3)
	other.Activate(kf, 5, 3)

	tracked, lost, dropped := removeDuplicateTracks(
		[]*Track{younger, other}, []*Track{older})

	assert.Equal(t, []*Track{other}, tracked)
	assert.Equal(t, []*Track{older}, lost)
	assert.Equal(t, []*Track{younger}, dropped)
}

func TestJointAndSubTracks(t *testing.T) {

	kf := DefaultKalmanFilter()
	tracks := make([]*Track, 4)

	for i := range tracks {
		tracks[i] = NewTrack(NewRect(float32(i*100), 0, 10, 10), 0.9, 0, int64(i))
		tracks[i].Activate(kf, 1, i+1)
	}

	joined := jointTracks(tracks[:3], []*Track{tracks[3], tracks[1]})
	assert.Equal(t, []*Track{tracks[0], tracks[1], tracks[2], tracks[3]}, joined)

	sub := subTracks(joined, []*Track{tracks[2], tracks[0]})
	assert.Equal(t, []*Track{tracks[1], tracks[3]}, sub)
}
