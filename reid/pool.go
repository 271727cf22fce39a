package reid

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// ErrPoolClosed is returned when inference is attempted on a closed pool
var ErrPoolClosed = errors.New("network pool is closed")

// NetPool is a simple pool of identical DNN networks so embedding inference
// can run on several goroutines at once.  A gocv.Net must only be used by
// one goroutine at a time.
type NetPool struct {
	// pool of networks
	nets chan *gocv.Net
	// size of pool
	size int
	// closed guards sends on nets once Close has run
	closed bool
	mu     sync.Mutex
}

// NewNetPool loads size copies of the model.  fp16 selects half precision
// inference where the backend supports it.
func NewNetPool(size int, modelFile, configFile string, fp16 bool) (*NetPool, error) {

	if size < 1 {
		size = 1
	}

	p := &NetPool{
		nets: make(chan *gocv.Net, size),
		size: size,
	}

	for i := 0; i < size; i++ {
		net := gocv.ReadNet(modelFile, configFile)

		if net.Empty() {
			// close any instances that may have been created before receiving
			// the error
			net.Close()
			p.Close()
			return nil, fmt.Errorf("failed to load reid model %q", modelFile)
		}

		if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
			net.Close()
			p.Close()
			return nil, fmt.Errorf("failed to set backend: %w", err)
		}

		target := gocv.NetTargetCPU

		if fp16 {
			target = gocv.NetTargetFP16
		}

		if err := net.SetPreferableTarget(target); err != nil {
			net.Close()
			p.Close()
			return nil, fmt.Errorf("failed to set target: %w", err)
		}

		// attach to pool
		p.Return(&net)
	}

	return p, nil
}

// Get takes a network from the pool, blocking until one is free.  It
// returns nil once the pool is closed.
func (p *NetPool) Get() *gocv.Net {
	net, ok := <-p.nets

	if !ok {
		return nil
	}

	return net
}

// Return a network to the pool.  Networks returned after Close are freed.
func (p *NetPool) Return(net *gocv.Net) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = net.Close()
		return
	}

	select {
	case p.nets <- net:
	default:
		// pool is full
		_ = net.Close()
	}
}

// Size returns the number of networks in the pool
func (p *NetPool) Size() int {
	return p.size
}

// Close the pool and all networks in it.  Networks still held by callers
// are freed when returned.
func (p *NetPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.nets)

	for next := range p.nets {
		_ = next.Close()
	}
}
