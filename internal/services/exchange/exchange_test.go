package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SRLevels/internal/domain/models"
	"SRLevels/internal/domain/repository"
	"SRLevels/pkg/cache"
)

var (
	fastRetry = RetryPolicy{Attempts: 3, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	start     = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// history returns n hourly rows in Binance's array format, oldest first.
func history(n int) [][]interface{} {
	rows := make([][]interface{}, n)
	for i := range rows {
		p := 100 + float64(i%50)
		rows[i] = []interface{}{
			float64(start.Add(time.Duration(i) * time.Hour).UnixMilli()),
			strconv.FormatFloat(p, 'f', 2, 64),
			strconv.FormatFloat(p+1, 'f', 2, 64),
			strconv.FormatFloat(p-1, 'f', 2, 64),
			strconv.FormatFloat(p+0.5, 'f', 2, 64),
			"10.5",
			float64(0),
		}
	}
	return rows
}

// window mimics the exchange: the newest limit rows at or before endMs.
func window(rows [][]interface{}, endMs int64, limit int) [][]interface{} {
	hi := len(rows)
	if endMs > 0 {
		hi = 0
		for hi < len(rows) && int64(rows[hi][0].(float64)) <= endMs {
			hi++
		}
	}
	lo := max(0, hi-limit)
	return rows[lo:hi]
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestBinanceFetchCandlesPagesBackwards(t *testing.T) {
	rows := history(2500)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		writeJSON(t, w, window(rows, end, limit))
	}))
	defer srv.Close()

	b := NewBinance(BinanceConfig{FuturesURL: srv.URL, Timeout: time.Second, Batch: 1000, Retry: fastRetry}, nil, nil)
	candles, err := b.FetchCandles(context.Background(), "BTC/USDT:USDT", models.MarketFuture, repository.TF1h, 2000)
	require.NoError(t, err)

	require.Len(t, candles, 2000)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, start.Add(500*time.Hour), candles[0].Timestamp)
	assert.Equal(t, start.Add(2499*time.Hour), candles[len(candles)-1].Timestamp)
	for i := 1; i < len(candles); i++ {
		require.True(t, candles[i].Timestamp.After(candles[i-1].Timestamp))
	}
	assert.InDelta(t, 10.5, candles[0].Volume, 1e-9)
}

func TestBinanceFetchCandlesShortHistory(t *testing.T) {
	rows := history(300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		writeJSON(t, w, window(rows, end, limit))
	}))
	defer srv.Close()

	b := NewBinance(BinanceConfig{SpotURL: srv.URL, Timeout: time.Second, Retry: fastRetry}, nil, nil)
	candles, err := b.FetchCandles(context.Background(), "ETHUSDT", models.MarketSpot, repository.TF1h, 2000)
	require.NoError(t, err)
	assert.Len(t, candles, 300)
}

func TestBinanceRejectsUnknownMarket(t *testing.T) {
	b := NewBinance(BinanceConfig{}, nil, nil)
	_, err := b.FetchCandles(context.Background(), "BTCUSDT", "margin", repository.TF1h, 10)
	assert.ErrorIs(t, err, ErrUnsupportedMarket)

	_, err = b.FetchCandles(context.Background(), "BTCUSDT", models.MarketSpot, "2h", 10)
	assert.ErrorIs(t, err, repository.ErrInvalidTimeframe)
}

func TestBinanceRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, history(10))
	}))
	defer srv.Close()

	b := NewBinance(BinanceConfig{SpotURL: srv.URL, Timeout: time.Second, Retry: fastRetry}, nil, nil)
	candles, err := b.FetchCandles(context.Background(), "BTCUSDT", models.MarketSpot, repository.TF1h, 10)
	require.NoError(t, err)
	assert.Len(t, candles, 10)
	assert.EqualValues(t, 3, calls.Load())
}

func TestBinanceDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	b := NewBinance(BinanceConfig{SpotURL: srv.URL, Timeout: time.Second, Retry: fastRetry}, nil, nil)
	_, err := b.FetchCandles(context.Background(), "NOPE", models.MarketSpot, repository.TF1h, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol")
	assert.EqualValues(t, 1, calls.Load())
}

func TestBinanceFetchSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/exchangeInfo", r.URL.Path)
		writeJSON(t, w, map[string]interface{}{
			"symbols": []map[string]string{
				{"symbol": "BTCUSDT", "status": "TRADING", "baseAsset": "BTC", "quoteAsset": "USDT", "marginAsset": "USDT", "contractType": "PERPETUAL"},
				{"symbol": "BTCUSDT_250328", "status": "TRADING", "baseAsset": "BTC", "quoteAsset": "USDT", "marginAsset": "USDT", "contractType": "CURRENT_QUARTER"},
				{"symbol": "ETHBTC", "status": "TRADING", "baseAsset": "ETH", "quoteAsset": "BTC", "marginAsset": "BTC", "contractType": "PERPETUAL"},
				{"symbol": "LUNAUSDT", "status": "SETTLING", "baseAsset": "LUNA", "quoteAsset": "USDT", "marginAsset": "USDT", "contractType": "PERPETUAL"},
			},
		})
	}))
	defer srv.Close()

	b := NewBinance(BinanceConfig{FuturesURL: srv.URL, Timeout: time.Second, Retry: fastRetry}, nil, nil)
	syms, err := b.FetchSymbols(context.Background(), models.MarketFuture)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, models.SymbolInfo{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", MarketType: models.MarketFuture}, syms[0])
}

func TestBybitFetchCandlesNewestFirst(t *testing.T) {
	rows := history(1500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		assert.Equal(t, "60", r.URL.Query().Get("interval"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end, _ := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
		page := window(rows, end, limit)
		list := make([][]interface{}, 0, len(page))
		for i := len(page) - 1; i >= 0; i-- {
			row := append([]interface{}{}, page[i]...)
			row[0] = strconv.FormatInt(int64(row[0].(float64)), 10)
			list = append(list, row)
		}
		writeJSON(t, w, map[string]interface{}{
			"retCode": 0,
			"retMsg":  "OK",
			"result":  map[string]interface{}{"list": list},
		})
	}))
	defer srv.Close()

	b := NewBybit(BybitConfig{BaseURL: srv.URL, Timeout: time.Second, Retry: fastRetry}, nil, nil)
	candles, err := b.FetchCandles(context.Background(), "BTCUSDT", models.MarketFuture, repository.TF1h, 1200)
	require.NoError(t, err)
	require.Len(t, candles, 1200)
	assert.Equal(t, start.Add(300*time.Hour), candles[0].Timestamp)
	assert.Equal(t, start.Add(1499*time.Hour), candles[1199].Timestamp)
}

func TestBybitErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"retCode": 10001, "retMsg": "params error", "result": map[string]interface{}{}})
	}))
	defer srv.Close()

	b := NewBybit(BybitConfig{BaseURL: srv.URL, Timeout: time.Second, Retry: fastRetry}, nil, nil)
	_, err := b.FetchCandles(context.Background(), "BTCUSDT", models.MarketSpot, repository.TF1d, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "params error")
}

func TestBybitFetchSymbolsFollowsCursor(t *testing.T) {
	pages := map[string]map[string]interface{}{
		"": {
			"list": []map[string]string{
				{"symbol": "BTCUSDT", "status": "Trading", "baseCoin": "BTC", "quoteCoin": "USDT", "settleCoin": "USDT", "contractType": "LinearPerpetual"},
				{"symbol": "BTC-27DEC24", "status": "Trading", "baseCoin": "BTC", "quoteCoin": "USDT", "settleCoin": "USDT", "contractType": "LinearFutures"},
			},
			"nextPageCursor": "p2",
		},
		"p2": {
			"list": []map[string]string{
				{"symbol": "ETHUSDT", "status": "Trading", "baseCoin": "ETH", "quoteCoin": "USDT", "settleCoin": "USDT", "contractType": "LinearPerpetual"},
				{"symbol": "XUSDT", "status": "PreLaunch", "baseCoin": "X", "quoteCoin": "USDT", "settleCoin": "USDT", "contractType": "LinearPerpetual"},
			},
			"nextPageCursor": "",
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/instruments-info", r.URL.Path)
		writeJSON(t, w, map[string]interface{}{"retCode": 0, "result": pages[r.URL.Query().Get("cursor")]})
	}))
	defer srv.Close()

	b := NewBybit(BybitConfig{BaseURL: srv.URL, Timeout: time.Second, Retry: fastRetry}, nil, nil)
	syms, err := b.FetchSymbols(context.Background(), models.MarketFuture)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "BTCUSDT", syms[0].Symbol)
	assert.Equal(t, "ETHUSDT", syms[1].Symbol)
}

type countingMarket struct {
	repository.MarketData
	calls int
}

func (c *countingMarket) Name() string { return "fake" }

func (c *countingMarket) FetchSymbols(context.Context, string) ([]models.SymbolInfo, error) {
	c.calls++
	return []models.SymbolInfo{{Symbol: "BTCUSDT"}}, nil
}

func TestCachedSymbols(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	inner := &countingMarket{}
	md := NewCachedSymbols(inner, mc, time.Hour)

	for i := 0; i < 3; i++ {
		syms, err := md.FetchSymbols(context.Background(), models.MarketSpot)
		require.NoError(t, err)
		require.Len(t, syms, 1)
	}
	_, err := md.FetchSymbols(context.Background(), models.MarketFuture)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryBackoffBounds(t *testing.T) {
	p := RetryPolicy{Attempts: 3, MinWait: 4 * time.Second, MaxWait: 10 * time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		d := p.backoff(attempt)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
	}
}
