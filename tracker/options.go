package tracker

import (
	"image"

	"github.com/swdee/go-botsort/gmc"
	"gocv.io/x/gocv"
)

// Extractor produces one appearance embedding per box of frame, in the
// order given.  A nil embedding marks a box that could not be processed.
type Extractor interface {
	Extract(frame gocv.Mat, boxes []image.Rectangle) ([][]float32, error)
}

// Option configures optional collaborators of the tracker
type Option func(*BoTSORT)

// WithLogger sets the logger, the default discards all output
func WithLogger(l *Logger) Option {
	return func(bs *BoTSORT) {
		if l != nil {
			bs.logger = l
		}
	}
}

// WithExtractor enables appearance association using ext to compute
// detection embeddings
func WithExtractor(ext Extractor) Option {
	return func(bs *BoTSORT) {
		bs.extractor = ext
	}
}

// WithMotionModel replaces the default Kalman filter
func WithMotionModel(mm MotionModel) Option {
	return func(bs *BoTSORT) {
		if mm != nil {
			bs.motion = mm
		}
	}
}

// WithSolver replaces the default LAPJV assignment solver
func WithSolver(s Solver) Option {
	return func(bs *BoTSORT) {
		if s != nil {
			bs.solver = s
		}
	}
}

// WithEstimator sets the camera motion estimator, overriding the method
// named in the config
func WithEstimator(e gmc.Estimator) Option {
	return func(bs *BoTSORT) {
		bs.estimator = e
	}
}
