package models

// LevelSource tags where a level came from.
type LevelSource string

const (
	SourceEmpirical      LevelSource = "empirical"
	SourceBollingerUpper LevelSource = "bollinger_upper"
	SourceBollingerLower LevelSource = "bollinger_lower"
)

// FibSource names a retracement level by its percentage label, e.g. "61.8" gives "fib_61.8".
func FibSource(label string) LevelSource { return LevelSource("fib_" + label) }

// IsTechnical reports whether the level was injected from a closed-form indicator.
func (s LevelSource) IsTechnical() bool { return s != SourceEmpirical && s != "" }

// ScoredLevel is a ranked support or resistance price with the diagnostics
// that produced its score.
//
// Score starts as the composite ranking score. Validation stores that value in
// OriginalScore and adds the strength bonus to Score.
type ScoredLevel struct {
	Price          float64     `json:"price"`
	Score          float64     `json:"score"`
	OriginalScore  float64     `json:"original_score"`
	Source         LevelSource `json:"source"`
	TouchCount     int         `json:"touch_count"`
	WeightedVolume float64     `json:"weighted_volume"`
	DistancePct    float64     `json:"distance_pct"`
	RecencyFactor  float64     `json:"recency_factor"`
	LatestIndex    int         `json:"latest_index"`
	Scales         int         `json:"scales"`

	Touches    int     `json:"touches"`
	Bounces    int     `json:"bounces"`
	Breaks     int     `json:"breaks"`
	BounceRate float64 `json:"bounce_rate"`
	BreakRate  float64 `json:"break_rate"`
	Strength   float64 `json:"strength"`
}

// Prices extracts the price field, preserving order.
func Prices(levels []ScoredLevel) []float64 {
	out := make([]float64, len(levels))
	for i, l := range levels {
		out[i] = l.Price
	}
	return out
}
