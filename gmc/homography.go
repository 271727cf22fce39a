package gmc

import (
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 projective transform in row major order mapping
// previous frame pixel coordinates to current frame pixel coordinates
type Homography [3][3]float64

// Identity returns the identity homography
func Identity() Homography {
	return Homography{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// IsIdentity returns true if h equals the identity transform
func (h Homography) IsIdentity() bool {
	return h == Identity()
}

// Linear returns the upper left 2x2 linear part of the transform
func (h Homography) Linear() *mat.Dense {
	return mat.NewDense(2, 2, []float64{
		h[0][0], h[0][1],
		h[1][0], h[1][1],
	})
}

// Translation returns the translation component of the transform
func (h Homography) Translation() (tx, ty float64) {
	return h[0][2], h[1][2]
}

// Dense returns the transform as a gonum matrix
func (h Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// Transform maps the point (x, y) through the homography
func (h Homography) Transform(x, y float64) (float64, float64) {

	w := h[2][0]*x + h[2][1]*y + h[2][2]

	if w == 0 || math.IsNaN(w) {
		w = 1
	}

	return (h[0][0]*x + h[0][1]*y + h[0][2]) / w,
		(h[1][0]*x + h[1][1]*y + h[1][2]) / w
}

// fromWarp converts a 2x3 affine or 3x3 projective warp Mat estimated on
// frames downscaled by downScale into a full resolution Homography.  An
// empty warp yields the identity.
func fromWarp(warp gocv.Mat, downScale int) Homography {

	h := Identity()

	if warp.Empty() || warp.Cols() != 3 || (warp.Rows() != 2 && warp.Rows() != 3) {
		return h
	}

	f64 := warp

	if warp.Type() != gocv.MatTypeCV64F {
		f64 = gocv.NewMat()
		defer f64.Close()
		warp.ConvertTo(&f64, gocv.MatTypeCV64F)
	}

	for r := 0; r < f64.Rows(); r++ {
		for c := 0; c < 3; c++ {
			h[r][c] = f64.GetDoubleAt(r, c)
		}
	}

	// translation was measured in downscaled pixels
	if downScale > 1 {
		h[0][2] *= float64(downScale)
		h[1][2] *= float64(downScale)
	}

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if math.IsNaN(h[r][c]) || math.IsInf(h[r][c], 0) {
				return Identity()
			}
		}
	}

	return h
}
