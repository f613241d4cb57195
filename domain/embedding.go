package domain

import "math"

// Embedding is a fixed-dimension dense vector representing a piece of text.
type Embedding []float32

// Dimension returns the number of components.
func (e Embedding) Dimension() int { return len(e) }

// CosineSimilarity returns the normalized dot product of e and other.
// Mismatched lengths, empty vectors and zero-norm vectors score exactly 0
// rather than NaN so callers never have to guard comparisons.
func (e Embedding) CosineSimilarity(other Embedding) float32 {
	if len(e) != len(other) || len(e) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range e {
		a, b := float64(e[i]), float64(other[i])
		dot += a * b
		normA += a * a
		normB += b * b
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
