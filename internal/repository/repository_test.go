package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	"SRLevels/pkg/cache"
	pkgch "SRLevels/pkg/clickhouse"
	pkgkafka "SRLevels/pkg/kafka"
)

// passthrough lets Array(Float64) values through the mock in both directions,
// as query arguments and as row values.
type passthrough struct{}

func (passthrough) ConvertValue(v interface{}) (driver.Value, error) { return v, nil }

func newMock(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pkgch.NewFromDB(db), mock
}

var (
	btcKey = models.AnalysisKey{Exchange: "binance", Symbol: "BTCUSDT", MarketType: "future", Timeframe: "1h"}
	stamp  = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

// resultRows must come from the mock so AddRow uses the passthrough converter.
func resultRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRows([]string{"exchange", "symbol", "market_type", "timeframe", "support_levels", "resistance_levels", "last_price", "input_limit", "updated_at"})
}

func TestResultStoreInit(t *testing.T) {
	ch, mock := newMock(t)
	s := NewCHResultStore(ch, "srlevels", nil)

	mock.ExpectExec(regexp.QuoteMeta("CREATE DATABASE IF NOT EXISTS srlevels")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS srlevels\.analysis_results .*ReplacingMergeTree\(updated_at\)`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreUpsertBatch(t *testing.T) {
	ch, mock := newMock(t)
	s := NewCHResultStore(ch, "srlevels", nil)
	s.now = func() time.Time { return stamp }

	eth := btcKey
	eth.Symbol = "ETHUSDT"
	rs := []*models.AnalysisResult{
		{AnalysisKey: btcKey, SupportLevels: []float64{100, 95}, ResistanceLevels: []float64{110}, LastPrice: 104, InputLimit: 2000},
		nil,
		{AnalysisKey: eth, LastPrice: 3000, InputLimit: 2000, UpdatedAt: stamp.Add(time.Minute)},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO srlevels.analysis_results (" + resultColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?, ?, ?, ?)")).
		WithArgs(
			"binance", "BTCUSDT", "future", "1h", []float64{100, 95}, []float64{110}, 104.0, uint32(2000), stamp,
			"binance", "ETHUSDT", "future", "1h", []float64{}, []float64{}, 3000.0, uint32(2000), stamp.Add(time.Minute),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.UpsertBatch(context.Background(), rs))
	assert.Equal(t, stamp, rs[0].UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultStoreGet(t *testing.T) {
	ch, mock := newMock(t)
	s := NewCHResultStore(ch, "srlevels", nil)

	mock.ExpectQuery(`FROM srlevels\.analysis_results FINAL`).
		WithArgs("binance", "BTCUSDT", "future", "1h").
		WillReturnRows(resultRows(mock).AddRow("binance", "BTCUSDT", "future", "1h", []float64{100}, []float64{110, 120}, 104.5, uint32(2000), stamp))

	r, err := s.Get(context.Background(), btcKey)
	require.NoError(t, err)
	assert.Equal(t, btcKey, r.AnalysisKey)
	assert.Equal(t, []float64{110, 120}, r.ResistanceLevels)
	assert.Equal(t, 2000, r.InputLimit)
	assert.Equal(t, stamp, r.UpdatedAt)

	mock.ExpectQuery(`FROM srlevels\.analysis_results FINAL`).WillReturnRows(resultRows(mock))
	_, err = s.Get(context.Background(), btcKey)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestResultStoreListFiltersAndPages(t *testing.T) {
	ch, mock := newMock(t)
	s := NewCHResultStore(ch, "srlevels", nil)

	f := models.ResultFilter{Exchange: "binance", Symbol: "BTC/USDT"}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count() FROM srlevels.analysis_results FINAL WHERE exchange = ? AND positionCaseInsensitive(symbol, ?) > 0")).
		WithArgs("binance", "BTCUSDT").
		WillReturnRows(mock.NewRows([]string{"count()"}).AddRow(uint64(25)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE exchange = ? AND positionCaseInsensitive(symbol, ?) > 0 ORDER BY updated_at DESC, symbol ASC LIMIT ? OFFSET ?")).
		WithArgs("binance", "BTCUSDT", 10, 10).
		WillReturnRows(resultRows(mock).
			AddRow("binance", "BTCUSDT", "future", "1h", []float64{1}, []float64{2}, 1.5, uint32(2000), stamp).
			AddRow("binance", "BTCUSDT", "spot", "1h", []float64{1}, []float64{2}, 1.5, uint32(2000), stamp))

	p, err := s.List(context.Background(), f, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 2, p.Page)
	require.Len(t, p.Items, 2)
	assert.Equal(t, []float64{1}, p.Items[1].SupportLevels)
	assert.Equal(t, "spot", p.Items[1].MarketType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleStoreLatestIsAscending(t *testing.T) {
	ch, mock := newMock(t)
	s := NewCHCandleStore(ch, "market", nil)

	t1, t2 := stamp, stamp.Add(time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("FROM market.candles_1m")).
		WithArgs("BTCUSDT", 2).
		WillReturnRows(mock.NewRows([]string{"ts", "open", "high", "low", "close", "volume"}).
			AddRow(t2, 2.0, 2.5, 1.5, 2.2, 10.0).
			AddRow(t1, 1.0, 1.5, 0.5, 1.2, 11.0))

	out, err := s.GetLatestNCandles(context.Background(), "BTC/USDT", 2, domrepo.TF1m)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, t1, out[0].Timestamp)
	assert.Equal(t, t2, out[1].Timestamp)

	_, err = s.GetLatestNCandles(context.Background(), "BTCUSDT", 2, "2h")
	assert.ErrorIs(t, err, domrepo.ErrInvalidTimeframe)
}

type recordingProducer struct {
	topic string
	msgs  []pkgkafka.Message
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestKafkaResultPublisher(t *testing.T) {
	rp := &recordingProducer{}
	p := &KafkaResultPublisher{producer: rp, topic: "levels.results"}

	r := &models.AnalysisResult{AnalysisKey: btcKey, LastPrice: 1}
	require.NoError(t, p.PublishBatch(context.Background(), []*models.AnalysisResult{r, nil}))
	require.Len(t, rp.msgs, 1)
	assert.Equal(t, "levels.results", rp.topic)
	assert.Equal(t, []byte("BTCUSDT"), rp.msgs[0].Key)
	assert.Equal(t, "1h", rp.msgs[0].Headers["timeframe"])
	assert.Same(t, r, rp.msgs[0].Value)
}

type memStore struct {
	domrepo.ResultStore
	byKey map[models.AnalysisKey]models.AnalysisResult
	gets  int
	lists int
}

func (m *memStore) Get(_ context.Context, k models.AnalysisKey) (*models.AnalysisResult, error) {
	m.gets++
	r, ok := m.byKey[k]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) List(context.Context, models.ResultFilter, int, int) (*models.ResultPage, error) {
	m.lists++
	return &models.ResultPage{Total: len(m.byKey)}, nil
}

func (m *memStore) UpsertBatch(_ context.Context, rs []*models.AnalysisResult) error {
	for _, r := range rs {
		m.byKey[r.AnalysisKey] = *r
	}
	return nil
}

func TestCachedResultStore(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	inner := &memStore{byKey: map[models.AnalysisKey]models.AnalysisResult{}}
	s := NewCachedResultStore(inner, mc, time.Minute, nil)

	_, err := s.Get(ctx, btcKey)
	assert.True(t, errors.Is(err, domrepo.ErrNotFound))

	require.NoError(t, s.Upsert(ctx, &models.AnalysisResult{AnalysisKey: btcKey, LastPrice: 1}))
	for i := 0; i < 3; i++ {
		r, err := s.Get(ctx, btcKey)
		require.NoError(t, err)
		assert.InDelta(t, 1, r.LastPrice, 1e-9)
		_, err = s.List(ctx, models.ResultFilter{}, 1, 10)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, inner.gets)
	assert.Equal(t, 1, inner.lists)

	require.NoError(t, s.Upsert(ctx, &models.AnalysisResult{AnalysisKey: btcKey, LastPrice: 2}))
	r, err := s.Get(ctx, btcKey)
	require.NoError(t, err)
	assert.InDelta(t, 2, r.LastPrice, 1e-9)
	_, _ = s.List(ctx, models.ResultFilter{}, 1, 10)
	assert.Equal(t, 2, inner.lists)
}
