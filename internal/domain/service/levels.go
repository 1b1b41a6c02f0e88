package service

import (
	"SRLevels/internal/domain/models"
	"SRLevels/internal/domain/repository"
)

// LevelSet is the full detector output for one series, diagnostics included.
type LevelSet struct {
	Supports     []models.ScoredLevel
	Resistances  []models.ScoredLevel
	CurrentPrice float64
}

// LevelDetector turns a candle series into ranked support and resistance levels.
// Implementations must be safe for concurrent use.
type LevelDetector interface {
	Detect(candles []models.Candle, tf repository.Timeframe) (supports, resistances []float64, err error)
	Analyze(candles []models.Candle, tf repository.Timeframe) (*LevelSet, error)
}
