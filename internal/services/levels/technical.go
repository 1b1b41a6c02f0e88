package levels

import (
	"math"
	"strconv"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/services/features"
)

// AugmentTechnical appends Bollinger band and Fibonacci retracement levels to
// the empirical lists. Technical levels carry fixed scores and are never
// validated. A candidate is skipped when a level on the same side already
// lies within DedupeThreshold of it. Both lists are re-sorted.
func (c Config) AugmentTechnical(s *features.Series, supports, resistances []models.ScoredLevel, currentPrice float64) ([]models.ScoredLevel, []models.ScoredLevel, error) {
	bands, ok, err := s.BollingerBands(c.BollingerPeriod, c.BollingerK)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		if bands.Upper > currentPrice && !c.isDuplicate(bands.Upper, resistances) {
			resistances = append(resistances, technicalLevel(bands.Upper, c.BollingerScore, models.SourceBollingerUpper, currentPrice))
		}
		if bands.Lower < currentPrice && !c.isDuplicate(bands.Lower, supports) {
			supports = append(supports, technicalLevel(bands.Lower, c.BollingerScore, models.SourceBollingerLower, currentPrice))
		}
	}

	if s.Len() > 0 {
		high, low := s.Range()
		diff := high - low
		for _, ratio := range c.FibRatios {
			price := low + diff*ratio
			src := models.FibSource(strconv.FormatFloat(ratio*100, 'f', 1, 64))
			switch {
			case price < currentPrice*(1-c.FibMargin):
				if !c.isDuplicate(price, supports) {
					supports = append(supports, technicalLevel(price, c.FibScore, src, currentPrice))
				}
			case price > currentPrice*(1+c.FibMargin):
				if !c.isDuplicate(price, resistances) {
					resistances = append(resistances, technicalLevel(price, c.FibScore, src, currentPrice))
				}
			}
		}
	}

	sortByScore(supports)
	sortByScore(resistances)
	return supports, resistances, nil
}

func (c Config) isDuplicate(price float64, existing []models.ScoredLevel) bool {
	for _, l := range existing {
		if price == 0 {
			if l.Price == 0 {
				return true
			}
			continue
		}
		if math.Abs(price-l.Price)/math.Abs(price) < c.DedupeThreshold {
			return true
		}
	}
	return false
}

func technicalLevel(price, score float64, src models.LevelSource, currentPrice float64) models.ScoredLevel {
	dist := 0.0
	if currentPrice != 0 {
		dist = math.Abs(price-currentPrice) / math.Abs(currentPrice)
	}
	return models.ScoredLevel{
		Price:         price,
		Score:         score,
		OriginalScore: score,
		Source:        src,
		TouchCount:    1,
		DistancePct:   dist,
		RecencyFactor: 1,
	}
}
