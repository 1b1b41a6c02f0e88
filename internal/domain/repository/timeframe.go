package repository

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Timeframe is a candle resolution such as "15m", "4h", "1d" or "1w".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
)

// ErrInvalidTimeframe is returned for timeframes whose unit or count cannot be parsed.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

var unitDurations = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// Duration parses the timeframe. Recognized units are m, h, d and w; the count
// must be a positive integer.
func (tf Timeframe) Duration() (time.Duration, error) {
	s := string(tf)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
	unit, ok := unitDurations[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidTimeframe, s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad count in %q", ErrInvalidTimeframe, s)
	}
	return time.Duration(n) * unit, nil
}

// Hours returns the timeframe length in (possibly fractional) hours.
func (tf Timeframe) Hours() (float64, error) {
	d, err := tf.Duration()
	if err != nil {
		return 0, err
	}
	return d.Hours(), nil
}

// Millis returns the timeframe length in milliseconds.
func (tf Timeframe) Millis() (int64, error) {
	d, err := tf.Duration()
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}

// IsValidTimeframe reports whether tf is one of the timeframes the service schedules.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF30m, TF1h, TF4h, TF1d, TF1w:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1h }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}
