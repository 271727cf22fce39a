package tracker

import "sync"

// IDGenerator hands out incremental track IDs starting at 1.  Each tracker
// owns its own generator so IDs are unique per stream and never reused.
type IDGenerator struct {
	id int
	sync.Mutex
}

// NewIDGenerator returns a generator whose first ID is 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next incremental ID
func (g *IDGenerator) GetNext() int {
	g.Lock()
	defer g.Unlock()
	g.id++
	return g.id
}

// Last returns the most recently issued ID, or 0 if none has been issued
func (g *IDGenerator) Last() int {
	g.Lock()
	defer g.Unlock()
	return g.id
}

// Reset restarts numbering from 1
func (g *IDGenerator) Reset() {
	g.Lock()
	defer g.Unlock()
	g.id = 0
}
