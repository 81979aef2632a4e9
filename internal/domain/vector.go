package domain

import (
	"fmt"
	"math"
)

// minNorm is the smallest L2 norm still treated as a direction.
const minNorm = 1e-12

// unitTolerance bounds how far a stored vector's norm may drift from 1.
const unitTolerance = 1e-6

// NewCacheKey normalises vector and pairs it with model.
func NewCacheKey(model string, vector []float64) (*CacheKey, error) {
	normalized, err := Normalize(vector)
	if err != nil {
		return nil, err
	}
	return &CacheKey{Model: model, Vector: normalized}, nil
}

// Normalize returns a unit-length copy of v so that inner product equals
// cosine similarity. Vectors with a near-zero norm are rejected.
func Normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrZeroVector)
	}

	norm := L2Norm(v)
	if norm < minNorm || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrZeroVector
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, nil
}

// L2Norm computes the Euclidean length of v.
func L2Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// IsUnit reports whether v has length 1 within tolerance.
func IsUnit(v []float64) bool {
	return math.Abs(L2Norm(v)-1) <= unitTolerance
}

// Dot computes the inner product of two equal-length vectors.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
