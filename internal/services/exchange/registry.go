package exchange

import (
	"fmt"

	"SRLevels/internal/domain/repository"
	"SRLevels/internal/service/ratelimit"
	"SRLevels/pkg/cache"
	"SRLevels/pkg/config"
	applogger "SRLevels/pkg/logger"
)

// Registry resolves exchange clients by name.
type Registry map[string]repository.MarketData

// Get returns the client for name.
func (r Registry) Get(name string) (repository.MarketData, error) {
	md, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("exchange %q not configured", name)
	}
	return md, nil
}

// NewRegistry builds a client for every exchange enabled in cfg. Symbol
// listings go through c when it is non-nil.
func NewRegistry(cfg *config.Config, limiter *ratelimit.Limiter, c cache.Service, l *applogger.Logger) (Registry, error) {
	ex := cfg.Exchange
	retry := RetryPolicy{Attempts: ex.RetryMax, MinWait: ex.RetryMinWait, MaxWait: ex.RetryMaxWait}

	reg := make(Registry, len(cfg.Analysis.Exchanges))
	for _, name := range cfg.Analysis.Exchanges {
		var md repository.MarketData
		switch name {
		case "binance":
			md = NewBinance(BinanceConfig{
				SpotURL:    ex.Binance.SpotURL,
				FuturesURL: ex.Binance.FuturesURL,
				Timeout:    ex.Timeout,
				Batch:      ex.FetchBatch,
				Limit:      RateLimit{RPS: ex.Binance.RPS, Burst: ex.Binance.Burst},
				Retry:      retry,
			}, limiter, l)
		case "bybit":
			md = NewBybit(BybitConfig{
				BaseURL: ex.Bybit.BaseURL,
				Timeout: ex.Timeout,
				Batch:   ex.FetchBatch,
				Limit:   RateLimit{RPS: ex.Bybit.RPS, Burst: ex.Bybit.Burst},
				Retry:   retry,
			}, limiter, l)
		default:
			return nil, fmt.Errorf("unknown exchange %q", name)
		}
		if c != nil {
			md = NewCachedSymbols(md, c, ex.SymbolsTTL)
		}
		reg[name] = md
	}
	return reg, nil
}
