// Package similarity implements brute-force face embedding matching and
// near-duplicate detection under cosine similarity.
package similarity

import (
	"fmt"
	"math"

	"github.com/your-org/facefind/internal/models"
)

// Cosine returns dot(a,b)/(|a|*|b|). Vectors of different length are
// rejected with ErrDimensionMismatch. A zero norm on either side gives 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", models.ErrDimensionMismatch, len(a), len(b))
	}
	return cosineWithNorm(a, Norm(a), b), nil
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineWithNorm assumes len(a) == len(b) and that normA is Norm(a).
func cosineWithNorm(a []float32, normA float64, b []float32) float64 {
	if normA == 0 {
		return 0
	}
	var dot, sumB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		sumB += float64(b[i]) * float64(b[i])
	}
	if sumB == 0 {
		return 0
	}
	return clamp(dot/(normA*math.Sqrt(sumB)), -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidateQuery rejects zero-length and zero-norm query vectors.
func ValidateQuery(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: zero length", models.ErrEmptyVector)
	}
	if Norm(v) == 0 {
		return fmt.Errorf("%w: zero norm", models.ErrEmptyVector)
	}
	return nil
}
