package levels

import (
	"fmt"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/domain/repository"
	"SRLevels/internal/domain/service"
	"SRLevels/internal/services/features"
	applogger "SRLevels/pkg/logger"
)

// Detector is the level detection pipeline: extrema, clustering and scoring,
// validation, technical augmentation, then top-N truncation. It holds only
// immutable configuration and is safe for concurrent use.
type Detector struct {
	cfg Config
	l   *applogger.Logger
}

var _ service.LevelDetector = (*Detector)(nil)

// NewDetector validates cfg (filling defaults) and builds a detector. l may be nil.
func NewDetector(cfg Config, l *applogger.Logger) (*Detector, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, l: l}, nil
}

// Config returns a copy of the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// Detect returns up to TopN support and resistance prices, most significant
// first. Series shorter than MinCandles yield two empty lists and no error.
func (d *Detector) Detect(candles []models.Candle, tf repository.Timeframe) ([]float64, []float64, error) {
	set, err := d.Analyze(candles, tf)
	if err != nil {
		return nil, nil, err
	}
	return models.Prices(set.Supports), models.Prices(set.Resistances), nil
}

// Analyze runs the pipeline and keeps per-level diagnostics.
func (d *Detector) Analyze(candles []models.Candle, tf repository.Timeframe) (*service.LevelSet, error) {
	tfHours, err := tf.Hours()
	if err != nil {
		return nil, fmt.Errorf("detect levels: %w", err)
	}
	if len(candles) < d.cfg.MinCandles {
		if d.l != nil {
			d.l.Debug("not enough candles for level detection",
				applogger.Int("candles", len(candles)),
				applogger.Int("min", d.cfg.MinCandles),
			)
		}
		return &service.LevelSet{Supports: []models.ScoredLevel{}, Resistances: []models.ScoredLevel{}}, nil
	}

	s := features.NewSeries(candles)
	current := s.LastClose()

	supCands := d.cfg.FindExtrema(s, tfHours, true)
	resCands := d.cfg.FindExtrema(s, tfHours, false)

	supports := ScoreClusters(d.cfg.GroupCandidates(supCands, current), s, current, true)
	resistances := ScoreClusters(d.cfg.GroupCandidates(resCands, current), s, current, false)

	supports = ValidateLevels(supports, s, d.cfg.Tolerance, true)
	resistances = ValidateLevels(resistances, s, d.cfg.Tolerance, false)

	supports, resistances, err = d.cfg.AugmentTechnical(s, supports, resistances, current)
	if err != nil {
		return nil, fmt.Errorf("detect levels: %w", err)
	}

	set := &service.LevelSet{
		Supports:     truncate(supports, d.cfg.TopN),
		Resistances:  truncate(resistances, d.cfg.TopN),
		CurrentPrice: current,
	}
	if d.l != nil {
		d.l.Debug("levels detected",
			applogger.Int("candles", s.Len()),
			applogger.String("tf", string(tf)),
			applogger.Int("support_candidates", len(supCands)),
			applogger.Int("resistance_candidates", len(resCands)),
			applogger.Int("supports", len(set.Supports)),
			applogger.Int("resistances", len(set.Resistances)),
		)
	}
	return set, nil
}

func truncate(levels []models.ScoredLevel, n int) []models.ScoredLevel {
	if len(levels) > n {
		levels = levels[:n]
	}
	out := make([]models.ScoredLevel, len(levels))
	copy(out, levels)
	return out
}
