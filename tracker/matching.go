package tracker

import (
	"fmt"

	"github.com/swdee/go-botsort/reid"
)

// maxAppearanceCost marks an appearance cost that must not be trusted
const maxAppearanceCost = float32(1)

// IoUDistance calculates the 1 - IoU cost between two sets of tracks
func IoUDistance(aTracks, bTracks []*Track) *CostMatrix {

	cost := NewCostMatrix(len(aTracks), len(bTracks))

	for i, a := range aTracks {
		for j, b := range bTracks {
			cost.Set(i, j, 1-b.GetRect().CalcIoU(*a.GetRect()))
		}
	}

	return cost
}

// FuseScore folds the detection confidence into an IoU cost so that a
// confident detection is cheaper to match than a weak one with the same
// overlap
func FuseScore(cost *CostMatrix, dets []*Track) *CostMatrix {

	out := cost.Clone()
	rows, cols := out.Dims()

	for i := 0; i < rows; i++ {
		row := out.Row(i)

		for j := 0; j < cols; j++ {
			row[j] = 1 - (1-row[j])*dets[j].GetScore()
		}
	}

	return out
}

// EmbeddingDistance calculates the cosine distance between each track's
// smoothed embedding and each detection's embedding, scaled to [0,1].
// Pairs with a missing embedding cost the maximum.
func EmbeddingDistance(tracks, dets []*Track) *CostMatrix {

	cost := NewCostMatrix(len(tracks), len(dets))

	for i, t := range tracks {
		tf := t.GetSmoothFeature()

		for j, d := range dets {
			df := d.GetFeature()

			if len(tf) == 0 || len(df) == 0 {
				cost.Set(i, j, maxAppearanceCost)
				continue
			}

			cost.Set(i, j, reid.CosineDistance(tf, df)/2)
		}
	}

	return cost
}

// FuseMotion sets the appearance cost of every pair whose detection lies
// outside the motion model's 95% gate to the maximum
func FuseMotion(mm MotionModel, emb *CostMatrix, tracks, dets []*Track,
	onlyPosition bool) (*CostMatrix, error) {

	out := emb.Clone()

	if out.Empty() {
		return out, nil
	}

	dims := 4

	if onlyPosition {
		dims = 2
	}

	gate := Chi2Inv95[dims]

	measurements := make([]DetectBox, len(dets))

	for j, d := range dets {
		measurements[j] = d.xyah()
	}

	for i, t := range tracks {
		dists, err := mm.GatingDistance(t.mean, &t.covariance, measurements, onlyPosition)

		if err != nil {
			return nil, fmt.Errorf("gating track %d: %w", t.GetTrackID(), err)
		}

		row := out.Row(i)

		for j, d := range dists {
			if d > gate {
				row[j] = maxAppearanceCost
			}
		}
	}

	return out, nil
}

// GateAppearance sets the appearance cost to the maximum for pairs that
// overlap too little (iou cost above proximity) or look too different
// (appearance cost above appearance)
func GateAppearance(emb, iou *CostMatrix, proximity, appearance float32) *CostMatrix {

	out := emb.Clone()
	rows, cols := out.Dims()

	for i := 0; i < rows; i++ {
		row := out.Row(i)

		for j := 0; j < cols; j++ {
			if iou.At(i, j) > proximity || row[j] > appearance {
				row[j] = maxAppearanceCost
			}
		}
	}

	return out
}

// FuseIoUWithEmbedding combines the geometric and appearance costs as
// lambda*geo + (1-lambda)*emb.  Pairs whose appearance cost was gated keep
// their geometric cost unchanged.  A nil emb returns geo.
func FuseIoUWithEmbedding(geo, emb *CostMatrix, lambda float32) *CostMatrix {

	out := geo.Clone()

	if emb == nil {
		return out
	}

	rows, cols := out.Dims()

	for i := 0; i < rows; i++ {
		row := out.Row(i)

		for j := 0; j < cols; j++ {
			e := emb.At(i, j)

			if e >= maxAppearanceCost {
				continue
			}

			row[j] = lambda*row[j] + (1-lambda)*e
		}
	}

	return out
}
