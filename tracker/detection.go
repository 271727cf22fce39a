package tracker

// Detection represents an object detected in a single frame that is passed
// into the tracker
type Detection struct {
	// Rect is the bounding box representation of the detected object
	Rect Rect
	// Label is the class label of the object detected
	Label int
	// Score is the confidence/probability of the object detected
	Score float32
	// ID is a unique ID to give this detection which can be used to match
	// the input detection and the track that consumed it
	ID int64
	// Feature is an optional precomputed ReID embedding.  When set the
	// tracker's Extractor is not run for this detection
	Feature []float32
}

// NewDetection is a constructor function for the Detection struct
func NewDetection(rect Rect, label int, score float32, id int64) Detection {
	return Detection{
		Rect:  rect,
		Label: label,
		Score: score,
		ID:    id,
	}
}

// clampDetections returns copies of the detections with their bounding
// boxes clamped to the frame size.  The callers slice is never modified.
func clampDetections(dets []Detection, width, height int) []Detection {

	out := make([]Detection, len(dets))

	for i, det := range dets {
		out[i] = Detection{
			Rect:  det.Rect.ClampTo(width, height),
			Label: det.Label,
			Score: det.Score,
			ID:    det.ID,
		}

		if det.Feature != nil {
			out[i].Feature = append([]float32(nil), det.Feature...)
		}
	}

	return out
}
