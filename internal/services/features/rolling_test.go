package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingMin(t *testing.T) {
	got := RollingMin([]float64{3, 1, 2, 5, 4}, 2)
	assert.True(t, math.IsInf(got[0], 1))
	assert.Equal(t, []float64{1, 1, 2, 4}, got[1:])
}

func TestRollingMax(t *testing.T) {
	got := RollingMax([]float64{3, 1, 2, 5, 4, 0}, 3)
	assert.True(t, math.IsInf(got[0], -1))
	assert.True(t, math.IsInf(got[1], -1))
	assert.Equal(t, []float64{3, 5, 5, 5}, got[2:])
}

func TestStrictLocalExtrema(t *testing.T) {
	xs := []float64{5, 5, 5, 4, 3, 1, 3, 4, 5, 5, 5}
	assert.Equal(t, []int{5}, StrictLocalMinima(xs, 3))
	assert.Empty(t, StrictLocalMaxima(xs, 3))

	// Equal neighbours do not count as strict extrema.
	flat := []float64{2, 2, 1, 1, 2, 2}
	assert.Empty(t, StrictLocalMinima(flat, 1))

	// Points within w of either edge are never candidates.
	edge := []float64{0, 5, 5, 5, 5, 5, 9}
	assert.Empty(t, StrictLocalMinima(edge, 2))
	assert.Empty(t, StrictLocalMaxima(edge, 2))

	assert.Nil(t, StrictLocalMinima([]float64{1, 0, 1}, 2))
	assert.Nil(t, StrictLocalMinima(xs, 0))
}

func TestStrictLocalMinimaMatchesBruteForce(t *testing.T) {
	xs := make([]float64, 200)
	for i := range xs {
		xs[i] = math.Sin(float64(i)*0.37) + 0.5*math.Cos(float64(i)*1.3)
	}
	for _, w := range []int{1, 3, 7, 15} {
		var want []int
		for i := w; i < len(xs)-w; i++ {
			ok := true
			for j := i - w; j <= i+w; j++ {
				if j != i && !(xs[i] < xs[j]) {
					ok = false
					break
				}
			}
			if ok {
				want = append(want, i)
			}
		}
		assert.Equal(t, want, StrictLocalMinima(xs, w), "w=%d", w)
	}
}
