package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	applogger "SRLevels/pkg/logger"
)

// ErrInvalidResult marks results rejected before reaching the backend.
var ErrInvalidResult = errors.New("invalid analysis result")

// Proc is the downstream the pipeline feeds.
type Proc interface {
	Process(ctx context.Context, r *models.AnalysisResult) error
	ProcessBatch(ctx context.Context, rs []*models.AnalysisResult) error
}

type pending struct {
	r        *models.AnalysisResult
	attempts int
}

// ResultPipeline sits in front of the result backend. It validates results,
// forwards them, and keeps failed writes in a bounded buffer that a
// background loop retries with capped exponential backoff.
type ResultPipeline struct {
	proc       Proc
	metrics    domrepo.Metrics
	l          *applogger.Logger
	bufSize    int
	batchSize  int
	retryMax   int
	minBackoff time.Duration
	maxBackoff time.Duration

	bufCh   chan pending
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

type PipelineOption func(*ResultPipeline)

// WithBufferSize sets how many failed results are held for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatchSize caps how many buffered results are retried together.
func WithBatchSize(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithRetry sets the retry limit per result and the backoff bounds.
func WithRetry(max int, minBackoff, maxBackoff time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if max >= 0 {
			p.retryMax = max
		}
		if minBackoff > 0 {
			p.minBackoff = minBackoff
		}
		if maxBackoff >= p.minBackoff {
			p.maxBackoff = maxBackoff
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *applogger.Logger) PipelineOption {
	return func(p *ResultPipeline) {
		if l != nil {
			p.l = l
		}
	}
}

// NewResultPipeline creates a new pipeline. Call Start to enable retries.
func NewResultPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ResultPipeline {
	p := &ResultPipeline{
		proc:       proc,
		metrics:    metrics,
		l:          applogger.NewNop(),
		bufSize:    1000,
		batchSize:  50,
		retryMax:   3,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.l = p.l.With("result_pipeline")
	p.bufCh = make(chan pending, p.bufSize)
	return p
}

// Start launches the retry loop. It runs until Stop or ctx is done.
func (p *ResultPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.flushLoop(ctx, p.stopCh, p.doneCh)
}

// Stop ends the retry loop and waits for it to exit. Results still in the
// buffer are flushed once more, best effort.
func (p *ResultPipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return
	}
	if batch := p.drain(len(p.bufCh)); len(batch) > 0 {
		if err := p.proc.ProcessBatch(ctx, results(batch)); err != nil {
			p.metrics.RecordError("pipeline_drop")
			p.l.Error("dropping buffered results on stop",
				applogger.Int("count", len(batch)), applogger.Error(err))
		}
	}
}

// Pending returns how many results wait for a retry.
func (p *ResultPipeline) Pending() int { return len(p.bufCh) }

// Process validates r and forwards it. On a downstream failure r is buffered
// for retry and the error is still returned.
func (p *ResultPipeline) Process(ctx context.Context, r *models.AnalysisResult) error {
	start := time.Now()
	if err := ValidateResult(r); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if err := p.proc.Process(ctx, r); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.enqueue(pending{r: r})
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *ResultPipeline) enqueue(it pending) {
	select {
	case p.bufCh <- it:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		p.l.Warn("retry buffer full, dropping result",
			applogger.String("key", it.r.AnalysisKey.String()))
	}
}

func (p *ResultPipeline) flushLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	backoff := p.minBackoff
	for {
		var first pending
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case first = <-p.bufCh:
		}

		batch := append([]pending{first}, p.drain(p.batchSize-1)...)
		err := p.proc.ProcessBatch(ctx, results(batch))
		if err == nil {
			backoff = p.minBackoff
			p.l.Debug("buffered results flushed", applogger.Int("count", len(batch)))
			continue
		}

		p.metrics.RecordError("pipeline_flush")
		for _, it := range batch {
			it.attempts++
			if it.attempts > p.retryMax {
				p.metrics.RecordError("pipeline_drop")
				p.l.Error("giving up on result",
					applogger.String("key", it.r.AnalysisKey.String()),
					applogger.Int("attempts", it.attempts),
					applogger.Error(err))
				continue
			}
			p.enqueue(it)
		}

		t := time.NewTimer(backoff)
		select {
		case <-stopCh:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff *= 2
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}
}

func (p *ResultPipeline) drain(n int) []pending {
	var out []pending
	for len(out) < n {
		select {
		case it := <-p.bufCh:
			out = append(out, it)
		default:
			return out
		}
	}
	return out
}

func results(items []pending) []*models.AnalysisResult {
	out := make([]*models.AnalysisResult, len(items))
	for i, it := range items {
		out[i] = it.r
	}
	return out
}

// ValidateResult checks the fields every backend relies on.
func ValidateResult(r *models.AnalysisResult) error {
	if r == nil {
		return fmt.Errorf("%w: nil", ErrInvalidResult)
	}
	if r.Exchange == "" {
		return fmt.Errorf("%w: exchange empty", ErrInvalidResult)
	}
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol empty", ErrInvalidResult)
	}
	if r.MarketType != models.MarketSpot && r.MarketType != models.MarketFuture {
		return fmt.Errorf("%w: market type %q", ErrInvalidResult, r.MarketType)
	}
	if !domrepo.IsValidTimeframe(domrepo.Timeframe(r.Timeframe)) {
		return fmt.Errorf("%w: timeframe %q", ErrInvalidResult, r.Timeframe)
	}
	if !finite(r.LastPrice) || r.LastPrice < 0 {
		return fmt.Errorf("%w: last price %v", ErrInvalidResult, r.LastPrice)
	}
	for _, v := range r.SupportLevels {
		if !finite(v) || v <= 0 {
			return fmt.Errorf("%w: support %v", ErrInvalidResult, v)
		}
	}
	for _, v := range r.ResistanceLevels {
		if !finite(v) || v <= 0 {
			return fmt.Errorf("%w: resistance %v", ErrInvalidResult, v)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
