package exchange

import (
	"context"
	"time"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/domain/repository"
	"SRLevels/pkg/cache"
)

// CachedSymbols keeps symbol listings of the wrapped exchange for ttl.
// Candle requests pass straight through.
type CachedSymbols struct {
	repository.MarketData
	cache cache.Service
	ttl   time.Duration
}

func NewCachedSymbols(md repository.MarketData, c cache.Service, ttl time.Duration) *CachedSymbols {
	return &CachedSymbols{MarketData: md, cache: c, ttl: ttl}
}

func (c *CachedSymbols) FetchSymbols(ctx context.Context, marketType string) ([]models.SymbolInfo, error) {
	key := cache.Key("symbols", c.Name(), marketType)
	return cache.GetOrLoad(ctx, c.cache, key, c.ttl, func(ctx context.Context) ([]models.SymbolInfo, error) {
		return c.MarketData.FetchSymbols(ctx, marketType)
	})
}
