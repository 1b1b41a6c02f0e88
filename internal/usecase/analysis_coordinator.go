package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"SRLevels/internal/domain/models"
	drepo "SRLevels/internal/domain/repository"
	"SRLevels/internal/domain/service"
	applogger "SRLevels/pkg/logger"
)

// ErrNoData is returned when an exchange has no candles for a job.
var ErrNoData = errors.New("no data")

// MarketSource resolves exchange clients by name.
type MarketSource interface {
	Get(name string) (drepo.MarketData, error)
}

// ResultSink accepts finished analysis results.
type ResultSink interface {
	Process(ctx context.Context, r *models.AnalysisResult) error
}

// CoordinatorConfig bounds one analysis run.
type CoordinatorConfig struct {
	Exchanges     []string
	MarketTypes   []string
	Timeframes    []drepo.Timeframe
	Concurrency   int
	BatchSize     int
	CandlesTotal  int
	MaxSymbols    int
	MaxErrorsKept int
	JobTimeout    time.Duration
}

func (c *CoordinatorConfig) normalize() {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.CandlesTotal <= 0 {
		c.CandlesTotal = 2000
	}
	if c.MaxErrorsKept <= 0 {
		c.MaxErrorsKept = 10
	}
}

// AnalysisCoordinator runs level detection across every configured
// exchange, market type, symbol and timeframe.
type AnalysisCoordinator struct {
	cfg      CoordinatorConfig
	markets  MarketSource
	detector service.LevelDetector
	sink     ResultSink
	metrics  drepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
}

func NewAnalysisCoordinator(
	cfg CoordinatorConfig,
	markets MarketSource,
	detector service.LevelDetector,
	sink ResultSink,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *AnalysisCoordinator {
	cfg.normalize()
	if l == nil {
		l = applogger.NewNop()
	}
	return &AnalysisCoordinator{
		cfg:      cfg,
		markets:  markets,
		detector: detector,
		sink:     sink,
		metrics:  metrics,
		l:        l.With("coordinator"),
		now:      time.Now,
	}
}

type runState struct {
	mu    sync.Mutex
	stats models.RunStats
	keep  int
}

func (s *runState) done(key models.AnalysisKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Total++
	if err == nil {
		s.stats.Success++
		return
	}
	s.stats.Failed++
	s.note(fmt.Sprintf("%s: %v", key, err))
}

// note must be called with mu held.
func (s *runState) note(msg string) {
	if len(s.stats.Errors) < s.keep {
		s.stats.Errors = append(s.stats.Errors, msg)
	}
}

// RunOnce analyzes everything once. A failing job never aborts the run; the
// returned error is non-nil only when ctx ends the run early.
func (c *AnalysisCoordinator) RunOnce(ctx context.Context) (models.RunStats, error) {
	st := &runState{keep: c.cfg.MaxErrorsKept}
	st.stats.StartedAt = c.now()
	st.stats.Errors = []string{}

	c.l.Info("analysis run started",
		applogger.Strings("exchanges", c.cfg.Exchanges),
		applogger.Strings("market_types", c.cfg.MarketTypes),
		applogger.Int("timeframes", len(c.cfg.Timeframes)))

	var runErr error
outer:
	for _, name := range c.cfg.Exchanges {
		for _, market := range c.cfg.MarketTypes {
			if err := ctx.Err(); err != nil {
				runErr = err
				break outer
			}
			if err := c.runMarket(ctx, st, name, market); err != nil {
				runErr = err
				break outer
			}
		}
	}

	stats := st.stats
	stats.Duration = c.now().Sub(stats.StartedAt)
	c.metrics.RecordRun(stats)
	c.l.Info("analysis run finished",
		applogger.Int("total", stats.Total),
		applogger.Int("success", stats.Success),
		applogger.Int("failed", stats.Failed),
		applogger.Duration("duration", stats.Duration))
	for _, e := range stats.Errors {
		c.l.Warn("analysis job failed", applogger.String("error", e))
	}
	return stats, runErr
}

func (c *AnalysisCoordinator) runMarket(ctx context.Context, st *runState, name, market string) error {
	md, err := c.markets.Get(name)
	if err != nil {
		st.mu.Lock()
		st.note(err.Error())
		st.mu.Unlock()
		return nil
	}
	symbols, err := md.FetchSymbols(ctx, market)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.metrics.RecordError("fetch_symbols")
		c.l.Error("fetch symbols failed",
			applogger.String("exchange", name),
			applogger.String("market_type", market),
			applogger.Error(err))
		st.mu.Lock()
		st.note(fmt.Sprintf("%s:%s symbols: %v", name, market, err))
		st.mu.Unlock()
		return nil
	}
	if c.cfg.MaxSymbols > 0 && len(symbols) > c.cfg.MaxSymbols {
		symbols = symbols[:c.cfg.MaxSymbols]
	}
	c.l.Info("analyzing market",
		applogger.String("exchange", name),
		applogger.String("market_type", market),
		applogger.Int("symbols", len(symbols)))

	for i, batch := range lo.Chunk(symbols, c.cfg.BatchSize) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Concurrency)
		for _, sym := range batch {
			for _, tf := range c.cfg.Timeframes {
				key := models.AnalysisKey{
					Exchange:   name,
					Symbol:     sym.Symbol,
					MarketType: market,
					Timeframe:  string(tf),
				}
				g.Go(func() error {
					_, err := c.analyze(gctx, md, key)
					st.done(key, err)
					return nil
				})
			}
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
		c.l.Debug("batch finished",
			applogger.String("exchange", name),
			applogger.String("market_type", market),
			applogger.Int("batch", i+1))
	}
	return nil
}

// AnalyzeOne runs a single job outside of a scheduled run.
func (c *AnalysisCoordinator) AnalyzeOne(ctx context.Context, key models.AnalysisKey) (*models.AnalysisResult, error) {
	md, err := c.markets.Get(key.Exchange)
	if err != nil {
		return nil, err
	}
	return c.analyze(ctx, md, key)
}

func (c *AnalysisCoordinator) analyze(ctx context.Context, md drepo.MarketData, key models.AnalysisKey) (*models.AnalysisResult, error) {
	start := time.Now()
	if c.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.JobTimeout)
		defer cancel()
	}

	res, err := c.analyzeJob(ctx, md, key)
	status := "success"
	if err != nil {
		status = "failed"
		c.l.Debug("job failed", applogger.String("key", key.String()), applogger.Error(err))
	}
	c.metrics.RecordAnalysis(key.Exchange, key.Timeframe, status)
	c.metrics.RecordLatency("analyze_job", time.Since(start).Seconds())
	return res, err
}

func (c *AnalysisCoordinator) analyzeJob(ctx context.Context, md drepo.MarketData, key models.AnalysisKey) (*models.AnalysisResult, error) {
	tf := drepo.Timeframe(key.Timeframe)
	candles, err := md.FetchCandles(ctx, key.Symbol, key.MarketType, tf, c.cfg.CandlesTotal)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, ErrNoData
	}
	res, err := detectResult(c.detector, key, candles, c.now())
	if err != nil {
		return nil, err
	}
	c.metrics.RecordLevels(res.Exchange, res.Symbol, res.Timeframe, len(res.SupportLevels), len(res.ResistanceLevels))
	if err := c.sink.Process(ctx, res); err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	return res, nil
}

// detectResult runs the detector on candles and packs the output for storage.
func detectResult(d service.LevelDetector, key models.AnalysisKey, candles []models.Candle, now time.Time) (*models.AnalysisResult, error) {
	supports, resistances, err := d.Detect(candles, drepo.Timeframe(key.Timeframe))
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	key.Symbol = models.NormalizeSymbol(key.Symbol)
	return &models.AnalysisResult{
		AnalysisKey:      key,
		SupportLevels:    lo.Ternary(supports == nil, []float64{}, supports),
		ResistanceLevels: lo.Ternary(resistances == nil, []float64{}, resistances),
		LastPrice:        candles[len(candles)-1].Close,
		InputLimit:       len(candles),
		UpdatedAt:        now.UTC(),
	}, nil
}
