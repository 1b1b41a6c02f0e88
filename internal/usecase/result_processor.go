package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SRLevels/internal/domain/models"
	drepo "SRLevels/internal/domain/repository"
)

// Sink backends.
const (
	BackendClickHouse = "clickhouse"
	BackendKafka      = "kafka"
	BackendBoth       = "both"
)

// ResultNotifier receives every result that reached the backend.
type ResultNotifier interface {
	Broadcast(r *models.AnalysisResult)
}

// ResultProcessor writes analysis results to the configured backend.
type ResultProcessor struct {
	pub      drepo.ResultPublisher
	store    drepo.ResultStore
	metrics  drepo.Metrics
	notifier ResultNotifier
	backend  string
}

// NewResultProcessor creates a processor. pub may be nil unless backend
// is kafka or both.
func NewResultProcessor(
	pub drepo.ResultPublisher,
	store drepo.ResultStore,
	metrics drepo.Metrics,
	backend string,
) (*ResultProcessor, error) {
	switch backend {
	case BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("backend %s: no result store", backend)
		}
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("backend %s: no publisher", backend)
		}
	case BackendBoth:
		if store == nil || pub == nil {
			return nil, fmt.Errorf("backend %s: store and publisher required", backend)
		}
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
	return &ResultProcessor{pub: pub, store: store, metrics: metrics, backend: backend}, nil
}

// SetNotifier attaches a listener for stored results.
func (p *ResultProcessor) SetNotifier(n ResultNotifier) { p.notifier = n }

// Backend returns the configured backend name.
func (p *ResultProcessor) Backend() string { return p.backend }

// Process writes a single result.
func (p *ResultProcessor) Process(ctx context.Context, r *models.AnalysisResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	return p.write(ctx, "process", []*models.AnalysisResult{r})
}

// ProcessBatch writes several results in one round trip per backend.
func (p *ResultProcessor) ProcessBatch(ctx context.Context, rs []*models.AnalysisResult) error {
	if len(rs) == 0 {
		return nil
	}
	return p.write(ctx, "process_batch", rs)
}

func (p *ResultProcessor) write(ctx context.Context, op string, rs []*models.AnalysisResult) error {
	start := time.Now()

	var errs []error
	if p.backend == BackendClickHouse || p.backend == BackendBoth {
		if err := p.store.UpsertBatch(ctx, rs); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if p.backend == BackendKafka || p.backend == BackendBoth {
		if err := p.pub.PublishBatch(ctx, rs); err != nil {
			errs = append(errs, fmt.Errorf("publish: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.metrics.RecordError(op)
		return fmt.Errorf("%s results: %w", op, err)
	}

	p.metrics.RecordLatency(op, time.Since(start).Seconds())
	for _, r := range rs {
		p.metrics.RecordLastPrice(r.Symbol, r.LastPrice)
		if p.notifier != nil {
			p.notifier.Broadcast(r)
		}
	}
	return nil
}

// Close closes underlying resources if available.
func (p *ResultProcessor) Close() error {
	var errs []error
	if p.pub != nil {
		errs = append(errs, p.pub.Close())
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	return errors.Join(errs...)
}
