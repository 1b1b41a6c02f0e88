package features

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"SRLevels/internal/domain/models"
)

// Series is a struct-of-arrays view over a candle slice. All columns share the
// same length and index.
type Series struct {
	Timestamps []time.Time
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64
}

// NewSeries copies candles into parallel columns.
func NewSeries(candles []models.Candle) *Series {
	n := len(candles)
	s := &Series{
		Timestamps: make([]time.Time, n),
		Open:       make([]float64, n),
		High:       make([]float64, n),
		Low:        make([]float64, n),
		Close:      make([]float64, n),
		Volume:     make([]float64, n),
	}
	for i, c := range candles {
		s.Timestamps[i] = c.Timestamp
		s.Open[i] = c.Open
		s.High[i] = c.High
		s.Low[i] = c.Low
		s.Close[i] = c.Close
		s.Volume[i] = c.Volume
	}
	return s
}

func (s *Series) Len() int { return len(s.Close) }

// LastClose returns the most recent close, or 0 for an empty series.
func (s *Series) LastClose() float64 {
	if len(s.Close) == 0 {
		return 0
	}
	return s.Close[len(s.Close)-1]
}

// MeanVolume returns the arithmetic mean volume, 0 when empty.
func (s *Series) MeanVolume() float64 {
	m, err := stats.Mean(s.Volume)
	if err != nil {
		return 0
	}
	return m
}

// Range returns the global max high and min low.
func (s *Series) Range() (high, low float64) {
	if s.Len() == 0 {
		return 0, 0
	}
	high, _ = stats.Max(s.High)
	low, _ = stats.Min(s.Low)
	return high, low
}

// Bands holds a moving-average channel.
type Bands struct {
	Middle float64
	Upper  float64
	Lower  float64
}

// BollingerBands computes MA ± k·σ over the trailing period closes, where σ is
// the sample standard deviation (n-1 denominator). ok is false when the series
// is shorter than period.
func (s *Series) BollingerBands(period int, k float64) (Bands, bool, error) {
	if period < 2 || s.Len() < period {
		return Bands{}, false, nil
	}
	window := s.Close[s.Len()-period:]
	ma, err := stats.Mean(window)
	if err != nil {
		return Bands{}, false, fmt.Errorf("bollinger mean: %w", err)
	}
	sd, err := stats.StandardDeviationSample(window)
	if err != nil {
		return Bands{}, false, fmt.Errorf("bollinger std: %w", err)
	}
	return Bands{Middle: ma, Upper: ma + k*sd, Lower: ma - k*sd}, true, nil
}
