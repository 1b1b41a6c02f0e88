package exchange

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/domain/repository"
	"SRLevels/internal/service/ratelimit"
	applogger "SRLevels/pkg/logger"
)

const bybitMaxLimit = 1000

var bybitIntervals = map[repository.Timeframe]string{
	repository.TF1m:  "1",
	repository.TF5m:  "5",
	repository.TF15m: "15",
	repository.TF30m: "30",
	repository.TF1h:  "60",
	repository.TF4h:  "240",
	repository.TF1d:  "D",
	repository.TF1w:  "W",
}

// BybitConfig holds endpoint and request budget for Bybit.
type BybitConfig struct {
	BaseURL string
	Timeout time.Duration
	Batch   int
	Limit   RateLimit
	Retry   RetryPolicy
}

// Bybit reads klines and USDT markets from the Bybit v5 market API.
type Bybit struct {
	httpBase
	cfg BybitConfig
}

var _ repository.MarketData = (*Bybit)(nil)

func NewBybit(cfg BybitConfig, limiter *ratelimit.Limiter, l *applogger.Logger) *Bybit {
	if cfg.Batch <= 0 || cfg.Batch > bybitMaxLimit {
		cfg.Batch = bybitMaxLimit
	}
	return &Bybit{
		httpBase: newHTTPBase("bybit", cfg.Timeout, limiter, cfg.Limit, cfg.Retry, l),
		cfg:      cfg,
	}
}

func (b *Bybit) Name() string { return "bybit" }

func bybitCategory(marketType string) (string, error) {
	switch marketType {
	case models.MarketSpot:
		return "spot", nil
	case models.MarketFuture:
		return "linear", nil
	default:
		return "", fmt.Errorf("bybit %q: %w", marketType, ErrUnsupportedMarket)
	}
}

type bybitEnvelope[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

func (e bybitEnvelope[T]) err() error {
	if e.RetCode != 0 {
		return fmt.Errorf("bybit retCode %d: %s", e.RetCode, e.RetMsg)
	}
	return nil
}

type bybitKlines struct {
	List [][]interface{} `json:"list"`
}

// FetchCandles returns up to total most recent candles, oldest first.
func (b *Bybit) FetchCandles(ctx context.Context, symbol, marketType string, tf repository.Timeframe, total int) ([]models.Candle, error) {
	interval, ok := bybitIntervals[tf]
	if !ok {
		return nil, repository.ErrInvalidTimeframe
	}
	category, err := bybitCategory(marketType)
	if err != nil {
		return nil, err
	}
	symbol = models.NormalizeSymbol(symbol)

	fetch := func(ctx context.Context, endMs int64, limit int) ([]models.Candle, error) {
		q := map[string][]string{
			"category": {category},
			"symbol":   {symbol},
			"interval": {interval},
			"limit":    {strconv.Itoa(limit)},
		}
		if endMs > 0 {
			q["end"] = []string{strconv.FormatInt(endMs, 10)}
		}
		var resp bybitEnvelope[bybitKlines]
		if err := b.getJSON(ctx, b.cfg.BaseURL+"/v5/market/kline", q, &resp); err != nil {
			return nil, err
		}
		if err := resp.err(); err != nil {
			return nil, err
		}
		out := make([]models.Candle, 0, len(resp.Result.List))
		for _, row := range resp.Result.List {
			c, err := parseRow(row)
			if err != nil {
				return nil, fmt.Errorf("bybit kline %s: %w", symbol, err)
			}
			out = append(out, c)
		}
		// Bybit lists newest first.
		slices.Reverse(out)
		return out, nil
	}

	candles, err := pageBackwards(ctx, fetch, total, b.cfg.Batch)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("klines fetched",
		applogger.String("symbol", symbol),
		applogger.String("category", category),
		applogger.String("timeframe", string(tf)),
		applogger.Int("count", len(candles)))
	return candles, nil
}

type bybitInstruments struct {
	List []struct {
		Symbol       string `json:"symbol"`
		Status       string `json:"status"`
		BaseCoin     string `json:"baseCoin"`
		QuoteCoin    string `json:"quoteCoin"`
		SettleCoin   string `json:"settleCoin"`
		ContractType string `json:"contractType"`
	} `json:"list"`
	NextPageCursor string `json:"nextPageCursor"`
}

// FetchSymbols lists trading USDT spot pairs or USDT settled perpetuals,
// following the instruments cursor until exhausted.
func (b *Bybit) FetchSymbols(ctx context.Context, marketType string) ([]models.SymbolInfo, error) {
	category, err := bybitCategory(marketType)
	if err != nil {
		return nil, err
	}

	var out []models.SymbolInfo
	cursor := ""
	for {
		q := map[string][]string{
			"category": {category},
			"limit":    {"1000"},
		}
		if cursor != "" {
			q["cursor"] = []string{cursor}
		}
		var resp bybitEnvelope[bybitInstruments]
		if err := b.getJSON(ctx, b.cfg.BaseURL+"/v5/market/instruments-info", q, &resp); err != nil {
			return nil, err
		}
		if err := resp.err(); err != nil {
			return nil, err
		}

		for _, s := range resp.Result.List {
			if s.Status != "Trading" || s.QuoteCoin != "USDT" {
				continue
			}
			if marketType == models.MarketFuture && (s.ContractType != "LinearPerpetual" || s.SettleCoin != "USDT") {
				continue
			}
			out = append(out, models.SymbolInfo{
				Symbol:     s.Symbol,
				Base:       s.BaseCoin,
				Quote:      s.QuoteCoin,
				MarketType: marketType,
			})
		}

		if resp.Result.NextPageCursor == "" || resp.Result.NextPageCursor == cursor {
			break
		}
		cursor = resp.Result.NextPageCursor
	}
	b.logger.Info("symbols loaded",
		applogger.String("category", category),
		applogger.Int("count", len(out)))
	return out, nil
}
