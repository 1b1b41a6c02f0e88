package repository

import (
	"context"
	"errors"

	"SRLevels/internal/domain/models"
)

// ErrNotFound is returned by ResultStore.Get when no result exists for the key.
var ErrNotFound = errors.New("analysis result not found")

// ResultStore persists analysis results with upsert semantics on AnalysisKey.
type ResultStore interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, r *models.AnalysisResult) error
	UpsertBatch(ctx context.Context, rs []*models.AnalysisResult) error
	Get(ctx context.Context, key models.AnalysisKey) (*models.AnalysisResult, error)
	List(ctx context.Context, f models.ResultFilter, page, pageSize int) (*models.ResultPage, error)
	Health(ctx context.Context) error
	Close() error
}

// ResultPublisher emits analysis results to downstream consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, r *models.AnalysisResult) error
	PublishBatch(ctx context.Context, rs []*models.AnalysisResult) error
	Close() error
}

type Metrics interface {
	RecordAnalysis(exchange, timeframe, status string)
	RecordLevels(exchange, symbol, timeframe string, supports, resistances int)
	RecordLastPrice(symbol string, price float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordRun(stats models.RunStats)
}
