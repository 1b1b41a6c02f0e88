package repository

import (
	"context"
	"time"

	"SRLevels/internal/domain/models"
)

// CandleStore provides read-only access to candles already stored locally.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

// MarketData fetches candle history and symbol listings from an exchange.
type MarketData interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, marketType string, tf Timeframe, total int) ([]models.Candle, error)
	FetchSymbols(ctx context.Context, marketType string) ([]models.SymbolInfo, error)
}
