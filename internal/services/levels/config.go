package levels

import (
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"SRLevels/internal/domain/repository"
)

var (
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid level detector config")
	// ErrInvalidTimeframe is the timeframe parse error Detect wraps.
	ErrInvalidTimeframe = repository.ErrInvalidTimeframe
)

// Config controls the level detector. Zero values are replaced by the defaults
// in the struct tags.
type Config struct {
	TopN              int       `yaml:"top_n_levels" default:"5" validate:"gte=1,lte=50"`
	MinCandles        int       `yaml:"min_candles" default:"50" validate:"gte=2"`
	ClusterEps        float64   `yaml:"cluster_eps" default:"0.003" validate:"gt=0,lt=1"`
	Tolerance         float64   `yaml:"tolerance" default:"0.01" validate:"gt=0,lt=1"`
	WindowSpansHours  []float64 `yaml:"window_spans_hours" default:"[5,12,24,48,72]" validate:"min=1,dive,gt=0"`
	MinWindow         int       `yaml:"min_window" default:"3" validate:"gte=1"`
	MaxWindowFraction float64   `yaml:"max_window_fraction" default:"0.1" validate:"gt=0,lte=0.5"`
	FallbackWindowMax int       `yaml:"fallback_window_max" default:"5" validate:"gte=1"`
	BollingerPeriod   int       `yaml:"bollinger_period" default:"20" validate:"gte=2"`
	BollingerK        float64   `yaml:"bollinger_k" default:"2" validate:"gt=0"`
	BollingerScore    float64   `yaml:"bollinger_score" default:"5"`
	FibRatios         []float64 `yaml:"fib_ratios" default:"[0.236,0.382,0.5,0.618,0.786]" validate:"dive,gt=0,lt=1"`
	FibScore          float64   `yaml:"fib_score" default:"4"`
	FibMargin         float64   `yaml:"fib_margin" default:"0.01" validate:"gte=0,lt=1"`
	DedupeThreshold   float64   `yaml:"dedupe_threshold" default:"0.005" validate:"gte=0,lt=1"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

var validate = validator.New()

// Normalize fills unset fields with defaults and validates the result.
func (c *Config) Normalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
