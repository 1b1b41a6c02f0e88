package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/domain/repository"
	"SRLevels/internal/service/ratelimit"
	applogger "SRLevels/pkg/logger"
)

const binanceMaxLimit = 1000

// BinanceConfig holds endpoints and request budget for Binance.
type BinanceConfig struct {
	SpotURL    string
	FuturesURL string
	Timeout    time.Duration
	Batch      int
	Limit      RateLimit
	Retry      RetryPolicy
}

// Binance reads klines and USDT markets from the Binance spot and USD-M
// futures REST APIs.
type Binance struct {
	httpBase
	cfg BinanceConfig
}

var _ repository.MarketData = (*Binance)(nil)

func NewBinance(cfg BinanceConfig, limiter *ratelimit.Limiter, l *applogger.Logger) *Binance {
	if cfg.Batch <= 0 || cfg.Batch > binanceMaxLimit {
		cfg.Batch = binanceMaxLimit
	}
	return &Binance{
		httpBase: newHTTPBase("binance", cfg.Timeout, limiter, cfg.Limit, cfg.Retry, l),
		cfg:      cfg,
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) endpoints(marketType string) (base, klines, info string, err error) {
	switch marketType {
	case models.MarketSpot:
		return b.cfg.SpotURL, "/api/v3/klines", "/api/v3/exchangeInfo", nil
	case models.MarketFuture:
		return b.cfg.FuturesURL, "/fapi/v1/klines", "/fapi/v1/exchangeInfo", nil
	default:
		return "", "", "", fmt.Errorf("binance %q: %w", marketType, ErrUnsupportedMarket)
	}
}

// FetchCandles returns up to total most recent candles, oldest first.
func (b *Binance) FetchCandles(ctx context.Context, symbol, marketType string, tf repository.Timeframe, total int) ([]models.Candle, error) {
	if !repository.IsValidTimeframe(tf) {
		return nil, repository.ErrInvalidTimeframe
	}
	base, path, _, err := b.endpoints(marketType)
	if err != nil {
		return nil, err
	}
	symbol = models.NormalizeSymbol(symbol)

	fetch := func(ctx context.Context, endMs int64, limit int) ([]models.Candle, error) {
		q := map[string][]string{
			"symbol":   {symbol},
			"interval": {string(tf)},
			"limit":    {strconv.Itoa(limit)},
		}
		if endMs > 0 {
			q["endTime"] = []string{strconv.FormatInt(endMs, 10)}
		}
		var rows [][]interface{}
		if err := b.getJSON(ctx, base+path, q, &rows); err != nil {
			return nil, err
		}
		out := make([]models.Candle, 0, len(rows))
		for _, row := range rows {
			c, err := parseRow(row)
			if err != nil {
				return nil, fmt.Errorf("binance kline %s: %w", symbol, err)
			}
			out = append(out, c)
		}
		return out, nil
	}

	candles, err := pageBackwards(ctx, fetch, total, b.cfg.Batch)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("klines fetched",
		applogger.String("symbol", symbol),
		applogger.String("market", marketType),
		applogger.String("timeframe", string(tf)),
		applogger.Int("count", len(candles)))
	return candles, nil
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		Status       string `json:"status"`
		BaseAsset    string `json:"baseAsset"`
		QuoteAsset   string `json:"quoteAsset"`
		MarginAsset  string `json:"marginAsset"`
		ContractType string `json:"contractType"`
	} `json:"symbols"`
}

// FetchSymbols lists trading USDT spot pairs or USDT margined perpetuals.
func (b *Binance) FetchSymbols(ctx context.Context, marketType string) ([]models.SymbolInfo, error) {
	base, _, path, err := b.endpoints(marketType)
	if err != nil {
		return nil, err
	}
	var info binanceExchangeInfo
	if err := b.getJSON(ctx, base+path, nil, &info); err != nil {
		return nil, err
	}

	var out []models.SymbolInfo
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.QuoteAsset != "USDT" {
			continue
		}
		if marketType == models.MarketFuture && (s.ContractType != "PERPETUAL" || s.MarginAsset != "USDT") {
			continue
		}
		out = append(out, models.SymbolInfo{
			Symbol:     s.Symbol,
			Base:       s.BaseAsset,
			Quote:      s.QuoteAsset,
			MarketType: marketType,
		})
	}
	b.logger.Info("symbols loaded",
		applogger.String("market", marketType),
		applogger.Int("count", len(out)))
	return out, nil
}
