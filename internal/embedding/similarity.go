package embedding

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// It returns 0 when either vector is empty, the lengths differ, or either has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push |sim| a hair past 1
	return math.Max(-1, math.Min(1, sim))
}
