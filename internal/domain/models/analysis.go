package models

import (
	"strings"
	"time"
)

// AnalysisKey identifies one stored analysis. There is at most one result per key.
type AnalysisKey struct {
	Exchange   string `json:"exchange"`
	Symbol     string `json:"symbol"`
	MarketType string `json:"market_type"`
	Timeframe  string `json:"timeframe"`
}

func (k AnalysisKey) String() string {
	return k.Exchange + ":" + k.MarketType + ":" + k.Symbol + ":" + k.Timeframe
}

// AnalysisResult is what gets persisted and published for one symbol/timeframe.
// Only prices are kept; per-level diagnostics do not survive past detection.
type AnalysisResult struct {
	AnalysisKey
	SupportLevels    []float64 `json:"support_levels"`
	ResistanceLevels []float64 `json:"resistance_levels"`
	LastPrice        float64   `json:"last_price"`
	InputLimit       int       `json:"input_limit"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NormalizeSymbol turns exchange-unified symbols into the stored form:
// "BTC/USDT:USDT" and "BTC/USDT" both become "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	if i := strings.IndexByte(symbol, ':'); i >= 0 {
		symbol = symbol[:i]
	}
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// ResultFilter narrows a result listing. Empty fields match everything.
type ResultFilter struct {
	Symbol     string
	Exchange   string
	MarketType string
}

// ResultPage is one page of a result listing.
type ResultPage struct {
	Items      []AnalysisResult
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// RunStats summarizes one coordinator run.
type RunStats struct {
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Market types.
const (
	MarketSpot   = "spot"
	MarketFuture = "future"
)

// SymbolInfo is a tradable market as listed by an exchange.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Base       string `json:"base"`
	Quote      string `json:"quote"`
	MarketType string `json:"market_type"`
}
