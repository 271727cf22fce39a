package gmc

import (
	"image"

	"gocv.io/x/gocv"
)

// eccMotionEuclidean is OpenCV's MOTION_EUCLIDEAN warp mode (rotation and
// translation)
const eccMotionEuclidean = 1

// eccEstimator aligns consecutive frames by maximising the enhanced
// correlation coefficient over a euclidean warp
type eccEstimator struct {
	params  Params
	prev    gocv.Mat
	hasPrev bool
}

func newECC(params Params) *eccEstimator {
	return &eccEstimator{
		params: params,
		prev:   gocv.NewMat(),
	}
}

// Apply estimates the motion between the previous frame and frame
func (e *eccEstimator) Apply(frame gocv.Mat, detections []image.Rectangle) (Homography, error) {

	gray := prepareFrame(frame, e.params.DownScale)

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Pt(3, 3), 1.5, 1.5, gocv.BorderDefault)
	gray.Close()

	if !e.hasPrev {
		e.store(blurred)
		return Identity(), nil
	}

	warp := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV32F)
	defer warp.Close()

	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			v := float32(0)
			if r == c {
				v = 1
			}
			warp.SetFloatAt(r, c, v)
		}
	}

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS,
		e.params.ECCIterations, e.params.ECCEpsilon)

	// detections are excluded from the alignment of the current frame
	mask := detectionMask(blurred.Rows(), blurred.Cols(), detections, e.params.DownScale)
	defer mask.Close()

	gocv.FindTransformECC(e.prev, blurred, &warp, eccMotionEuclidean,
		criteria, mask, 1)

	e.store(blurred)

	return fromWarp(warp, e.params.DownScale), nil
}

// store replaces the previous frame, taking ownership of it
func (e *eccEstimator) store(gray gocv.Mat) {
	e.prev.Close()
	e.prev = gray
	e.hasPrev = true
}

// Reset forgets the previous frame
func (e *eccEstimator) Reset() {
	e.store(gocv.NewMat())
	e.hasPrev = false
}

// Close frees the stored frame
func (e *eccEstimator) Close() error {
	return e.prev.Close()
}
