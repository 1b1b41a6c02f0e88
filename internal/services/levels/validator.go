package levels

import (
	"math"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/services/features"
)

const strengthWeight = 2.0

// ValidateLevels replays the series against each level. A touch is a bar whose
// low (support) or high (resistance) lies within tolerance·|price| of the level;
// the following bar then counts as a bounce when its close moves away from the
// level and as a break when it pierces the band. The last bar has no successor
// and is never inspected.
//
// Score becomes OriginalScore + 2·(bounceRate − breakRate). The slice is
// updated in place and re-sorted.
func ValidateLevels(levels []models.ScoredLevel, s *features.Series, tolerance float64, isSupport bool) []models.ScoredLevel {
	n := s.Len()
	for k := range levels {
		lv := &levels[k]
		tol := math.Abs(lv.Price) * tolerance

		var touches, bounces, breaks int
		for i := 0; i < n-1; i++ {
			if isSupport {
				if math.Abs(s.Low[i]-lv.Price) > tol {
					continue
				}
				touches++
				if s.Close[i+1] > s.Close[i] {
					bounces++
				}
				if s.Low[i+1] < lv.Price-tol {
					breaks++
				}
			} else {
				if math.Abs(s.High[i]-lv.Price) > tol {
					continue
				}
				touches++
				if s.Close[i+1] < s.Close[i] {
					bounces++
				}
				if s.High[i+1] > lv.Price+tol {
					breaks++
				}
			}
		}

		var bounceRate, breakRate float64
		if touches > 0 {
			bounceRate = float64(bounces) / float64(touches)
			breakRate = float64(breaks) / float64(touches)
		}
		lv.OriginalScore = lv.Score
		lv.Touches = touches
		lv.Bounces = bounces
		lv.Breaks = breaks
		lv.BounceRate = bounceRate
		lv.BreakRate = breakRate
		lv.Strength = bounceRate - breakRate
		lv.Score = lv.OriginalScore + lv.Strength*strengthWeight
	}
	sortByScore(levels)
	return levels
}
