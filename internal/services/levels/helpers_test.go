package levels

import (
	"time"

	"SRLevels/internal/domain/models"
)

// lcg is a tiny deterministic generator so fixtures are stable across platforms.
type lcg struct{ x uint32 }

func (g *lcg) next() float64 {
	g.x = 1664525*g.x + 1013904223
	return float64(g.x) / 4294967296.0
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// syntheticCandles builds an hourly uptrend from 100 to 120 with a floor held
// at 105 over bars 100-199 and a ceiling held at 115 over bars 300-399.
func syntheticCandles(n int, seed uint32) []models.Candle {
	g := &lcg{x: seed}
	closes := make([]float64, n)
	for i := range closes {
		trend := 100 + 20*float64(i)/float64(n-1)
		noise := (g.next() + g.next() + g.next() - 1.5) * 2.0
		p := trend + noise
		if i >= 100 && i < 200 && p < 105 {
			p = 105 + g.next()
		}
		if i >= 300 && i < 400 && p > 115 {
			p = 115 - g.next()
		}
		closes[i] = p
	}
	out := make([]models.Candle, n)
	for i, c := range closes {
		o := c + (g.next() - 0.5)
		h := max(o, c) + g.next()
		l := min(o, c) - g.next()
		v := 1000 + 9000*g.next()
		out[i] = models.Candle{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: o, High: h, Low: l, Close: c, Volume: v}
	}
	return out
}

// flatCandles returns n identical bars at price p.
func flatCandles(n int, p float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p, Low: p, Close: p, Volume: 100}
	}
	return out
}

// ohlc builds bars from parallel low/high/close columns with unit volume.
func ohlc(lows, highs, closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i := range closes {
		out[i] = models.Candle{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: closes[i], High: highs[i], Low: lows[i], Close: closes[i], Volume: 1}
	}
	return out
}
