package tracker

import (
	"image"
	"sync"
)

// Trail keeps the recent center points of each track for drawing motion
// trails
type Trail struct {
	// size is the maximum number of most recent points kept per track
	size int
	// history of center points keyed by track ID
	history map[int][]image.Point
	sync.Mutex
}

// NewTrail returns a trail history that keeps at most size points per track
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int][]image.Point),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int][]image.Point)
}

// Add appends the track's current center point to its history
func (t *Trail) Add(track *Track) {
	t.Lock()
	defer t.Unlock()

	rect := track.GetRect()
	pt := image.Pt(
		int(rect.TLX()+rect.Width()/2),
		int(rect.TLY()+rect.Height()/2),
	)

	points := append(t.history[track.GetTrackID()], pt)

	if len(points) > t.size {
		points = points[len(points)-t.size:]
	}

	t.history[track.GetTrackID()] = points
}

// Prune drops the history of every track not in keep
func (t *Trail) Prune(keep []*Track) {
	t.Lock()
	defer t.Unlock()

	live := make(map[int]struct{}, len(keep))

	for _, track := range keep {
		live[track.GetTrackID()] = struct{}{}
	}

	for id := range t.history {
		if _, ok := live[id]; !ok {
			delete(t.history, id)
		}
	}
}

// GetPoints returns a copy of the point history of a track
func (t *Trail) GetPoints(id int) []image.Point {
	t.Lock()
	defer t.Unlock()

	return append([]image.Point(nil), t.history[id]...)
}
