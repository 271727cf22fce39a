package gmc

import (
	"image"

	"gocv.io/x/gocv"
)

// minFlowPoints is the minimum number of tracked corners required before an
// affine transform is estimated
const minFlowPoints = 5

// sparseOptFlow estimates camera motion from corner features tracked with
// pyramidal Lucas-Kanade optical flow
type sparseOptFlow struct {
	params  Params
	prev    gocv.Mat
	prevPts gocv.Mat
	hasPrev bool
}

func newSparseOptFlow(params Params) *sparseOptFlow {
	return &sparseOptFlow{
		params:  params,
		prev:    gocv.NewMat(),
		prevPts: gocv.NewMat(),
	}
}

// Apply estimates the motion between the previous frame and frame
func (s *sparseOptFlow) Apply(frame gocv.Mat, detections []image.Rectangle) (Homography, error) {

	gray := prepareFrame(frame, s.params.DownScale)

	corners := gocv.NewMat()
	gocv.GoodFeaturesToTrack(gray, &corners, s.params.MaxCorners,
		s.params.QualityLevel, s.params.MinDistance)

	// only background corners are tracked
	mask := detectionMask(gray.Rows(), gray.Cols(), detections, s.params.DownScale)
	corners = maskCorners(corners, mask)
	mask.Close()

	if !s.hasPrev || s.prevPts.Empty() {
		s.store(gray, corners)
		return Identity(), nil
	}

	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	gocv.CalcOpticalFlowPyrLK(s.prev, gray, s.prevPts, nextPts, &status, &errMat)

	var from, to []gocv.Point2f

	for i := 0; i < status.Rows(); i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}

		p := s.prevPts.GetVecfAt(i, 0)
		n := nextPts.GetVecfAt(i, 0)

		from = append(from, gocv.Point2f{X: p[0], Y: p[1]})
		to = append(to, gocv.Point2f{X: n[0], Y: n[1]})
	}

	s.store(gray, corners)

	if len(from) < minFlowPoints {
		return Identity(), nil
	}

	fromVec := gocv.NewPoint2fVectorFromPoints(from)
	defer fromVec.Close()
	toVec := gocv.NewPoint2fVectorFromPoints(to)
	defer toVec.Close()

	warp := gocv.EstimateAffinePartial2D(fromVec, toVec)
	defer warp.Close()

	return fromWarp(warp, s.params.DownScale), nil
}

// maskCorners returns the corners that lie on set pixels of mask.  It takes
// ownership of corners, which may be returned as is.
func maskCorners(corners, mask gocv.Mat) gocv.Mat {

	var kept []gocv.Point2f

	for i := 0; i < corners.Rows(); i++ {
		p := corners.GetVecfAt(i, 0)
		x, y := int(p[0]), int(p[1])

		if x < 0 || y < 0 || x >= mask.Cols() || y >= mask.Rows() ||
			mask.GetUCharAt(y, x) == 0 {
			continue
		}

		kept = append(kept, gocv.Point2f{X: p[0], Y: p[1]})
	}

	if len(kept) == corners.Rows() {
		return corners
	}

	corners.Close()

	if len(kept) == 0 {
		return gocv.NewMat()
	}

	// Nx1 two channel float points, the layout optical flow expects
	out := gocv.NewMatWithSize(len(kept), 1, gocv.MatTypeCV32FC2)

	for i, p := range kept {
		out.SetFloatAt(i, 0, p.X)
		out.SetFloatAt(i, 1, p.Y)
	}

	return out
}

// store replaces the previous frame and corners, taking ownership of both
func (s *sparseOptFlow) store(gray, corners gocv.Mat) {
	s.prev.Close()
	s.prevPts.Close()
	s.prev = gray
	s.prevPts = corners
	s.hasPrev = true
}

// Reset forgets the previous frame
func (s *sparseOptFlow) Reset() {
	s.store(gocv.NewMat(), gocv.NewMat())
	s.hasPrev = false
}

// Close frees the stored frame
func (s *sparseOptFlow) Close() error {
	s.prevPts.Close()
	return s.prev.Close()
}
