// Package gmc estimates global camera motion between consecutive video
// frames so that tracked object positions can be compensated for panning,
// tilting and shaking of the camera.
package gmc

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"gocv.io/x/gocv"
)

// ErrUnknownMethod is returned when a camera motion method name or value
// is not recognised
var ErrUnknownMethod = errors.New("unknown camera motion method")

// Method selects the camera motion estimation algorithm
type Method int

const (
	// None disables camera motion compensation
	None Method = iota
	// SparseOptFlow tracks corner features with pyramidal Lucas-Kanade
	// optical flow
	SparseOptFlow
	// ORB matches ORB keypoints between frames, masking out detections
	ORB
	// ECC aligns frames by Enhanced Correlation Coefficient maximisation
	ECC
)

// methodNames maps the configuration names to methods
var methodNames = map[string]Method{
	"none":          None,
	"sparseoptflow": SparseOptFlow,
	"orb":           ORB,
	"ecc":           ECC,
}

// String returns the configuration name of the method
func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case SparseOptFlow:
		return "sparseOptFlow"
	case ORB:
		return "orb"
	case ECC:
		return "ecc"
	}

	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod returns the Method for the given name.  Matching is case
// insensitive.
func ParseMethod(name string) (Method, error) {

	m, ok := methodNames[strings.ToLower(strings.TrimSpace(name))]

	if !ok {
		return None, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}

	return m, nil
}

// Params holds the tuning parameters shared by the estimators
type Params struct {
	// DownScale is the factor frames are shrunk by before estimation
	DownScale int
	// MaxCorners is the maximum number of features tracked by SparseOptFlow
	MaxCorners int
	// QualityLevel is the minimal accepted corner quality for SparseOptFlow
	QualityLevel float64
	// MinDistance is the minimum distance between SparseOptFlow corners
	MinDistance float64
	// MatchRatio is the Lowe ratio test threshold used by ORB
	MatchRatio float64
	// ECCIterations and ECCEpsilon are the ECC termination criteria
	ECCIterations int
	ECCEpsilon    float64
}

// DefaultParams returns the parameters used by BoT-SORT
func DefaultParams() Params {
	return Params{
		DownScale:     2,
		MaxCorners:    1000,
		QualityLevel:  0.01,
		MinDistance:   1,
		MatchRatio:    0.9,
		ECCIterations: 100,
		ECCEpsilon:    1e-5,
	}
}

// Estimator computes the homography mapping the previous frame onto the
// current frame.  Implementations keep the previous frame internally and
// are not safe for concurrent use.
type Estimator interface {
	// Apply estimates camera motion for frame.  Detections are the object
	// boxes in frame which estimators may exclude from feature extraction.
	// The first frame always returns the identity.
	Apply(frame gocv.Mat, detections []image.Rectangle) (Homography, error)
	// Reset forgets the previous frame
	Reset()
	// Close frees native memory held by the estimator
	Close() error
}

// New returns the Estimator for the given method
func New(method Method, params Params) (Estimator, error) {

	if params.DownScale < 1 {
		params.DownScale = 1
	}

	switch method {
	case None:
		return &noop{}, nil
	case SparseOptFlow:
		return newSparseOptFlow(params), nil
	case ORB:
		return newORB(params), nil
	case ECC:
		return newECC(params), nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, int(method))
}

// noop is the estimator used when compensation is disabled
type noop struct{}

func (n *noop) Apply(frame gocv.Mat, detections []image.Rectangle) (Homography, error) {
	return Identity(), nil
}

func (n *noop) Reset() {}

func (n *noop) Close() error {
	return nil
}

// prepareFrame converts the frame to grayscale and downscales it.  The
// caller must close the returned Mat.
func prepareFrame(frame gocv.Mat, downScale int) gocv.Mat {

	gray := gocv.NewMat()

	if frame.Channels() == 1 {
		frame.CopyTo(&gray)
	} else {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}

	if downScale <= 1 {
		return gray
	}

	small := gocv.NewMat()
	gocv.Resize(gray, &small,
		image.Pt(frame.Cols()/downScale, frame.Rows()/downScale),
		0, 0, gocv.InterpolationLinear)
	gray.Close()

	return small
}

// detectionMask returns an 8 bit mask over a frame of rows x cols, already
// downscaled by downScale, that is set everywhere except a 2% border and
// the detection boxes.  The caller must close the returned Mat.
func detectionMask(rows, cols int, detections []image.Rectangle, downScale int) gocv.Mat {

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)

	inner := image.Rect(cols/50, rows/50, cols-cols/50, rows-rows/50)
	gocv.Rectangle(&mask, inner, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	// detections are in full frame coordinates
	for _, det := range detections {
		r := image.Rect(det.Min.X/downScale, det.Min.Y/downScale,
			det.Max.X/downScale, det.Max.Y/downScale)
		gocv.Rectangle(&mask, r, color.RGBA{}, -1)
	}

	return mask
}
