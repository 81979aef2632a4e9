package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestNormalize(t *testing.T) {
	t.Run("should scale to unit length", func(t *testing.T) {
		v, err := domain.Normalize([]float64{3, 4})
		require.NoError(t, err)
		require.Equal(t, []float64{0.6, 0.8}, v)
		require.True(t, domain.IsUnit(v))
	})

	t.Run("should not modify input", func(t *testing.T) {
		in := []float64{0, 2}
		_, err := domain.Normalize(in)
		require.NoError(t, err)
		require.Equal(t, []float64{0, 2}, in)
	})

	t.Run("should reject degenerate vectors", func(t *testing.T) {
		for _, v := range [][]float64{nil, {0, 0}, {1e-20, 0}, {math.NaN(), 1}, {math.Inf(1), 0}} {
			_, err := domain.Normalize(v)
			require.ErrorIs(t, err, domain.ErrZeroVector)
		}
	})
}

func TestDot(t *testing.T) {
	a, err := domain.Normalize([]float64{1, 1})
	require.NoError(t, err)

	require.InDelta(t, 1.0, domain.Dot(a, a), 1e-12)
	require.InDelta(t, 0.0, domain.Dot([]float64{1, 0}, []float64{0, 1}), 0)
	require.InDelta(t, -1.0, domain.Dot([]float64{1, 0}, []float64{-1, 0}), 0)
}

func TestNewCacheKey(t *testing.T) {
	key, err := domain.NewCacheKey("gpt-4", []float64{0, 5})
	require.NoError(t, err)
	require.Equal(t, "gpt-4", key.Model)
	require.Equal(t, []float64{0, 1}, key.Vector)
	require.True(t, domain.IsUnit(key.Vector))
	require.False(t, domain.IsUnit([]float64{0, 2}))
}
