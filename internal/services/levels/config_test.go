package levels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 5, c.TopN)
	assert.Equal(t, 50, c.MinCandles)
	assert.Equal(t, 0.003, c.ClusterEps)
	assert.Equal(t, 0.01, c.Tolerance)
	assert.Equal(t, []float64{5, 12, 24, 48, 72}, c.WindowSpansHours)
	assert.Equal(t, 3, c.MinWindow)
	assert.Equal(t, 0.1, c.MaxWindowFraction)
	assert.Equal(t, []float64{0.236, 0.382, 0.5, 0.618, 0.786}, c.FibRatios)
	assert.Equal(t, 5.0, c.BollingerScore)
	assert.Equal(t, 4.0, c.FibScore)
	assert.Equal(t, 0.005, c.DedupeThreshold)
}

func TestNormalizeKeepsOverrides(t *testing.T) {
	c := Config{TopN: 8, WindowSpansHours: []float64{6, 36}}
	require.NoError(t, c.Normalize())
	assert.Equal(t, 8, c.TopN)
	assert.Equal(t, []float64{6, 36}, c.WindowSpansHours)
	assert.Equal(t, 0.003, c.ClusterEps)
}

func TestNormalizeRejects(t *testing.T) {
	for name, c := range map[string]Config{
		"top n too large":   {TopN: 500},
		"negative span":     {WindowSpansHours: []float64{5, -1}},
		"fraction too wide": {MaxWindowFraction: 0.9},
	} {
		err := c.Normalize()
		assert.ErrorIs(t, err, ErrInvalidConfig, name)
	}
}
