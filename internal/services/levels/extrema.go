package levels

import (
	"time"

	"SRLevels/internal/services/features"
)

// Candidate is a local extremum found at one window scale. The same bar can
// yield several candidates, one per scale that detects it.
type Candidate struct {
	Price     float64
	Volume    float64
	Index     int
	Scale     int
	Timestamp time.Time
}

// Windows converts the configured real-world spans into candle counts for a
// timeframe of tfHours and a series of n candles.
//
// Each span gives max(MinWindow, int(span/tfHours)); only windows within
// [MinWindow, int(n*MaxWindowFraction)] survive. When none do, a single window
// of min(FallbackWindowMax, n/20) is used.
func (c Config) Windows(tfHours float64, n int) []int {
	maxWindow := int(float64(n) * c.MaxWindowFraction)
	out := make([]int, 0, len(c.WindowSpansHours))
	for _, span := range c.WindowSpansHours {
		w := c.MinWindow
		if tfHours > 0 {
			if k := int(span / tfHours); k > w {
				w = k
			}
		}
		if w >= c.MinWindow && w <= maxWindow {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		out = append(out, min(c.FallbackWindowMax, n/20))
	}
	return out
}

// FindExtrema scans lows (support) or highs (resistance) at every window scale
// and returns one candidate per (scale, extremum) pair, grouped by scale in
// window order and by index within a scale.
func (c Config) FindExtrema(s *features.Series, tfHours float64, isSupport bool) []Candidate {
	var out []Candidate
	for _, w := range c.Windows(tfHours, s.Len()) {
		var idx []int
		var prices []float64
		if isSupport {
			idx = features.StrictLocalMinima(s.Low, w)
			prices = s.Low
		} else {
			idx = features.StrictLocalMaxima(s.High, w)
			prices = s.High
		}
		for _, i := range idx {
			out = append(out, Candidate{
				Price:     prices[i],
				Volume:    s.Volume[i],
				Index:     i,
				Scale:     w,
				Timestamp: s.Timestamps[i],
			})
		}
	}
	return out
}
