// Package reid provides appearance embeddings for re-identifying tracked
// objects, together with the vector maths used to compare them.
package reid

import "math"

// dot returns the dot product of a and b accumulated in float64
func dot(a, b []float32) float64 {
	var sum float64

	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

// CosineSimilarity returns the cosine of the angle between vectors a and b.
// Vectors of different length or with zero magnitude have similarity 0.
func CosineSimilarity(a, b []float32) float32 {

	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	na, nb := dot(a, a), dot(b, b)

	if na == 0 || nb == 0 {
		return 0
	}

	return float32(dot(a, b) / math.Sqrt(na*nb))
}

// CosineDistance returns 1 - cosine similarity, in the range [0,2]
func CosineDistance(a, b []float32) float32 {
	return max(0, min(2, 1-CosineSimilarity(a, b)))
}

// NormalizeVec returns v scaled to unit length.  A zero vector is returned
// as a copy.
func NormalizeVec(v []float32) []float32 {

	out := append([]float32(nil), v...)
	norm := math.Sqrt(dot(v, v))

	if norm == 0 {
		return out
	}

	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}

	return out
}
