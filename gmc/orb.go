package gmc

import (
	"image"

	"gocv.io/x/gocv"
)

// orbEstimator matches ORB keypoints between frames.  Keypoints on
// detected objects and near the frame border are masked out so that only
// the static background drives the estimate.
type orbEstimator struct {
	params   Params
	orb      gocv.ORB
	matcher  gocv.BFMatcher
	prevKps  []gocv.KeyPoint
	prevDesc gocv.Mat
	hasPrev  bool
}

func newORB(params Params) *orbEstimator {
	return &orbEstimator{
		params:   params,
		orb:      gocv.NewORB(),
		matcher:  gocv.NewBFMatcherWithParams(gocv.NormHamming, false),
		prevDesc: gocv.NewMat(),
	}
}

// Apply estimates the motion between the previous frame and frame
func (o *orbEstimator) Apply(frame gocv.Mat, detections []image.Rectangle) (Homography, error) {

	gray := prepareFrame(frame, o.params.DownScale)
	defer gray.Close()

	mask := detectionMask(gray.Rows(), gray.Cols(), detections, o.params.DownScale)
	defer mask.Close()

	kps, desc := o.orb.DetectAndCompute(gray, mask)

	if !o.hasPrev || o.prevDesc.Empty() || desc.Empty() {
		o.store(kps, desc)
		return Identity(), nil
	}

	knn := o.matcher.KnnMatch(o.prevDesc, desc, 2)

	var from, to []gocv.Point2f

	for _, m := range knn {
		if len(m) < 2 || m[0].Distance >= o.params.MatchRatio*m[1].Distance {
			continue
		}

		p := o.prevKps[m[0].QueryIdx]
		n := kps[m[0].TrainIdx]

		from = append(from, gocv.Point2f{X: float32(p.X), Y: float32(p.Y)})
		to = append(to, gocv.Point2f{X: float32(n.X), Y: float32(n.Y)})
	}

	o.store(kps, desc)

	if len(from) < minFlowPoints {
		return Identity(), nil
	}

	fromVec := gocv.NewPoint2fVectorFromPoints(from)
	defer fromVec.Close()
	toVec := gocv.NewPoint2fVectorFromPoints(to)
	defer toVec.Close()

	warp := gocv.EstimateAffinePartial2D(fromVec, toVec)
	defer warp.Close()

	return fromWarp(warp, o.params.DownScale), nil
}

// store replaces the previous keypoints and descriptors
func (o *orbEstimator) store(kps []gocv.KeyPoint, desc gocv.Mat) {
	o.prevDesc.Close()
	o.prevKps = kps
	o.prevDesc = desc
	o.hasPrev = true
}

// Reset forgets the previous frame
func (o *orbEstimator) Reset() {
	o.store(nil, gocv.NewMat())
	o.hasPrev = false
}

// Close frees the detector, matcher and stored descriptors
func (o *orbEstimator) Close() error {
	o.prevDesc.Close()
	o.matcher.Close()
	return o.orb.Close()
}
