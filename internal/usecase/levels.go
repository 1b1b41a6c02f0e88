package usecase

import (
	"context"
	"errors"
	"fmt"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	"SRLevels/internal/domain/service"
	"SRLevels/pkg/queue"
)

// ErrQueueUnavailable is returned when on-demand analysis is requested
// without a job queue.
var ErrQueueUnavailable = errors.New("analysis queue unavailable")

// LevelsUseCase serves stored results and ad-hoc detection to the API.
type LevelsUseCase struct {
	store    domrepo.ResultStore
	candles  domrepo.CandleStore
	detector service.LevelDetector
	queue    queue.Publisher
}

// NewLevelsUseCase wires the read side. candles and q may be nil; the
// operations that need them then fail.
func NewLevelsUseCase(store domrepo.ResultStore, candles domrepo.CandleStore, detector service.LevelDetector, q queue.Publisher) *LevelsUseCase {
	return &LevelsUseCase{store: store, candles: candles, detector: detector, queue: q}
}

func (uc *LevelsUseCase) List(ctx context.Context, f models.ResultFilter, page, pageSize int) (*models.ResultPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	f.Symbol = models.NormalizeSymbol(f.Symbol)
	return uc.store.List(ctx, f, page, pageSize)
}

func (uc *LevelsUseCase) Get(ctx context.Context, key models.AnalysisKey) (*models.AnalysisResult, error) {
	key.Symbol = models.NormalizeSymbol(key.Symbol)
	return uc.store.Get(ctx, key)
}

// DetectResult is the response of an ad-hoc detection.
type DetectResult struct {
	Supports     []float64            `json:"supports"`
	Resistances  []float64            `json:"resistances"`
	CurrentPrice float64              `json:"current_price"`
	Candles      int                  `json:"candles"`
	SupportInfo  []models.ScoredLevel `json:"support_details,omitempty"`
	ResistInfo   []models.ScoredLevel `json:"resistance_details,omitempty"`
}

// Detect runs the pipeline on caller supplied candles. Candles are sorted and
// deduplicated first.
func (uc *LevelsUseCase) Detect(candles []models.Candle, tf domrepo.Timeframe, diagnostics bool) (*DetectResult, error) {
	candles = SortCandles(candles)
	set, err := uc.detector.Analyze(candles, tf)
	if err != nil {
		return nil, err
	}
	out := &DetectResult{
		Supports:     models.Prices(set.Supports),
		Resistances:  models.Prices(set.Resistances),
		CurrentPrice: set.CurrentPrice,
		Candles:      len(candles),
	}
	if diagnostics {
		out.SupportInfo = set.Supports
		out.ResistInfo = set.Resistances
	}
	return out, nil
}

// DetectStored runs the pipeline on the latest n locally stored candles.
func (uc *LevelsUseCase) DetectStored(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (*DetectResult, error) {
	if uc.candles == nil {
		return nil, fmt.Errorf("candle store not configured")
	}
	cs, err := uc.candles.GetLatestNCandles(ctx, symbol, n, tf)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(cs) == 0 {
		return nil, ErrNoData
	}
	return uc.Detect(cs, tf, false)
}

// RequestAnalysis queues req and returns the job id.
func (uc *LevelsUseCase) RequestAnalysis(ctx context.Context, req models.AnalyzeRequest) (string, error) {
	if uc.queue == nil {
		return "", ErrQueueUnavailable
	}
	req.Symbol = models.NormalizeSymbol(req.Symbol)
	return uc.queue.Enqueue(ctx, AnalyzeJobType, req)
}
