package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SRLevels/internal/domain/models"
	drepo "SRLevels/internal/domain/repository"
	"SRLevels/internal/domain/service"
)

type nopMetrics struct {
	mu       sync.Mutex
	analyses map[string]int
	errors   map[string]int
	runs     []models.RunStats
}

func newMetrics() *nopMetrics {
	return &nopMetrics{analyses: map[string]int{}, errors: map[string]int{}}
}

func (m *nopMetrics) RecordAnalysis(_, _, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[status]++
}

func (m *nopMetrics) RecordLevels(string, string, string, int, int) {}
func (m *nopMetrics) RecordLastPrice(string, float64)              {}
func (m *nopMetrics) RecordLatency(string, float64)                {}

func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *nopMetrics) RecordRun(s models.RunStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, s)
}

func candles(n int, start float64) []models.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		p := start + float64(i)
		out[i] = models.Candle{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 10}
	}
	return out
}

type fakeMarket struct {
	name       string
	symbols    []models.SymbolInfo
	symbolsErr error
	empty      map[string]bool
	failing    map[string]bool
	delay      time.Duration

	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (f *fakeMarket) Name() string { return f.name }

func (f *fakeMarket) FetchCandles(ctx context.Context, symbol, _ string, _ drepo.Timeframe, total int) ([]models.Candle, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.failing[symbol] {
		return nil, errors.New("exchange down")
	}
	if f.empty[symbol] {
		return nil, nil
	}
	return candles(min(total, 60), 100), nil
}

func (f *fakeMarket) FetchSymbols(context.Context, string) ([]models.SymbolInfo, error) {
	return f.symbols, f.symbolsErr
}

type markets map[string]drepo.MarketData

func (m markets) Get(name string) (drepo.MarketData, error) {
	md, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("exchange %q not configured", name)
	}
	return md, nil
}

type fakeDetector struct {
	supports, resistances []float64
	err                   error
}

func (d fakeDetector) Detect(_ []models.Candle, _ drepo.Timeframe) ([]float64, []float64, error) {
	return d.supports, d.resistances, d.err
}

func (d fakeDetector) Analyze(cs []models.Candle, _ drepo.Timeframe) (*service.LevelSet, error) {
	if d.err != nil {
		return nil, d.err
	}
	set := &service.LevelSet{CurrentPrice: cs[len(cs)-1].Close}
	for _, p := range d.supports {
		set.Supports = append(set.Supports, models.ScoredLevel{Price: p, Score: 1})
	}
	for _, p := range d.resistances {
		set.Resistances = append(set.Resistances, models.ScoredLevel{Price: p, Score: 1})
	}
	return set, nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []*models.AnalysisResult
	err error
}

func (s *recordingSink) Process(_ context.Context, r *models.AnalysisResult) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r)
	return nil
}

func (s *recordingSink) results() []*models.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AnalysisResult(nil), s.got...)
}

type fakeStore struct {
	upserts int
	err     error
	closed  bool
	rows    map[string]*models.AnalysisResult
}

func (s *fakeStore) Init(context.Context) error { return nil }

func (s *fakeStore) Upsert(ctx context.Context, r *models.AnalysisResult) error {
	return s.UpsertBatch(ctx, []*models.AnalysisResult{r})
}

func (s *fakeStore) UpsertBatch(_ context.Context, rs []*models.AnalysisResult) error {
	if s.err != nil {
		return s.err
	}
	if s.rows == nil {
		s.rows = map[string]*models.AnalysisResult{}
	}
	for _, r := range rs {
		s.rows[r.AnalysisKey.String()] = r
	}
	s.upserts += len(rs)
	return nil
}

func (s *fakeStore) Get(_ context.Context, k models.AnalysisKey) (*models.AnalysisResult, error) {
	if r, ok := s.rows[k.String()]; ok {
		return r, nil
	}
	return nil, drepo.ErrNotFound
}

func (s *fakeStore) List(context.Context, models.ResultFilter, int, int) (*models.ResultPage, error) {
	return &models.ResultPage{}, nil
}

func (s *fakeStore) Health(context.Context) error { return nil }

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

type fakePublisher struct {
	published int
	err       error
	closed    bool
}

func (p *fakePublisher) Publish(ctx context.Context, r *models.AnalysisResult) error {
	return p.PublishBatch(ctx, []*models.AnalysisResult{r})
}

func (p *fakePublisher) PublishBatch(_ context.Context, rs []*models.AnalysisResult) error {
	if p.err != nil {
		return p.err
	}
	p.published += len(rs)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}
