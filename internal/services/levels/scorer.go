package levels

import (
	"math"
	"sort"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/services/features"
)

// Composite score weights.
const (
	touchWeight     = 3.0
	volumeWeight    = 2.0
	diversityWeight = 0.5
	nearDistScore   = 2.0
	sweetDistScore  = 2.5
	farDistBase     = 2.0
	farDistSlope    = 5.0
	farDistFloor    = 0.2
	sweetDistMin    = 0.01
	sweetDistMax    = 0.10
	rightSideScore  = 2.0
	wrongSideScore  = 0.5
	minDecay        = 0.3
	decayRange      = 1 - minDecay
)

// DecayFactor weights bar idx of an n-bar series linearly from 0.3 (oldest)
// to 1.0 (newest). A series of one bar or less weighs 1.0.
func DecayFactor(idx, n int) float64 {
	if n <= 1 {
		return 1.0
	}
	return minDecay + decayRange*float64(idx)/float64(n-1)
}

// distanceScore favours levels 1-10% away; closer levels score slightly less and
// farther ones decay linearly to a floor. All are scaled by recency.
func distanceScore(distPct, recency float64) float64 {
	switch {
	case distPct >= sweetDistMin && distPct <= sweetDistMax:
		return sweetDistScore * recency
	case distPct < sweetDistMin:
		return nearDistScore * recency
	default:
		return math.Max(farDistFloor, farDistBase-(distPct-sweetDistMax)*farDistSlope) * recency
	}
}

// ScoreClusters ranks clusters by the composite of touch count, decay-weighted
// volume, distance, direction and scale diversity. The result is sorted by
// score descending; ties keep cluster order.
func ScoreClusters(clusters []Cluster, s *features.Series, currentPrice float64, isSupport bool) []models.ScoredLevel {
	n := s.Len()
	meanVol := s.MeanVolume()
	out := make([]models.ScoredLevel, 0, len(clusters))

	for _, c := range clusters {
		if len(c.Members) == 0 {
			continue
		}
		avg := c.AvgPrice()

		var wv, wsum float64
		for _, m := range c.Members {
			d := DecayFactor(m.Index, n)
			wv += m.Volume * d
			wsum += d
		}
		weightedVol := meanVol
		if wsum > 0 {
			weightedVol = wv / wsum
		}

		distPct := 0.0
		if currentPrice != 0 {
			distPct = math.Abs(avg-currentPrice) / math.Abs(currentPrice)
		}
		latest := c.LatestIndex()
		recency := DecayFactor(latest, n)

		volumeScore := 0.0
		if meanVol > 0 {
			volumeScore = weightedVol / meanVol * volumeWeight
		}
		rightSide := avg < currentPrice
		if !isSupport {
			rightSide = avg > currentPrice
		}
		directionScore := wrongSideScore
		if rightSide {
			directionScore = rightSideScore
		}
		scales := c.Scales()

		score := float64(c.TouchCount())*touchWeight +
			volumeScore +
			distanceScore(distPct, recency) +
			directionScore +
			float64(scales)*diversityWeight

		out = append(out, models.ScoredLevel{
			Price:          avg,
			Score:          score,
			OriginalScore:  score,
			Source:         models.SourceEmpirical,
			TouchCount:     c.TouchCount(),
			WeightedVolume: weightedVol,
			DistancePct:    distPct,
			RecencyFactor:  recency,
			LatestIndex:    latest,
			Scales:         scales,
		})
	}
	sortByScore(out)
	return out
}

func sortByScore(levels []models.ScoredLevel) {
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Score > levels[j].Score })
}
