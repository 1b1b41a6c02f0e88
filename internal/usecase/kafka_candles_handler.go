package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	"SRLevels/internal/domain/service"
	pkgkafka "SRLevels/pkg/kafka"
)

// KafkaCandlesHandler turns candle-history messages into stored levels.
type KafkaCandlesHandler struct {
	topic    string
	detector service.LevelDetector
	sink     ResultSink
	metrics  domrepo.Metrics
	now      func() time.Time
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)

func NewKafkaCandlesHandler(topic string, detector service.LevelDetector, sink ResultSink, metrics domrepo.Metrics) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{topic: topic, detector: detector, sink: sink, metrics: metrics, now: time.Now}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// Handle expects a models.CandleBatch encoded as JSON.
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var m models.CandleBatch
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode candle batch: %w", err)
	}
	if m.MarketType == "" {
		m.MarketType = models.MarketFuture
	}
	if m.Exchange == "" || m.Symbol == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("candle batch: exchange and symbol required")
	}
	if !domrepo.IsValidTimeframe(domrepo.Timeframe(m.Timeframe)) {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("candle batch: %w: %q", domrepo.ErrInvalidTimeframe, m.Timeframe)
	}

	candles := SortCandles(m.Candles)
	if len(candles) == 0 {
		h.metrics.RecordAnalysis(m.Exchange, m.Timeframe, "failed")
		return ErrNoData
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", h.now().Sub(candles[len(candles)-1].Timestamp).Seconds())

	start := time.Now()
	key := models.AnalysisKey{Exchange: m.Exchange, Symbol: m.Symbol, MarketType: m.MarketType, Timeframe: m.Timeframe}
	res, err := detectResult(h.detector, key, candles, h.now())
	if err != nil {
		h.metrics.RecordAnalysis(m.Exchange, m.Timeframe, "failed")
		return err
	}
	h.metrics.RecordLatency("consumer_detect", time.Since(start).Seconds())
	h.metrics.RecordLevels(res.Exchange, res.Symbol, res.Timeframe, len(res.SupportLevels), len(res.ResistanceLevels))

	if err := h.sink.Process(ctx, res); err != nil {
		h.metrics.RecordError("consumer_sink")
		h.metrics.RecordAnalysis(m.Exchange, m.Timeframe, "failed")
		return err
	}
	h.metrics.RecordAnalysis(m.Exchange, m.Timeframe, "success")
	return nil
}

// SortCandles returns candles ordered by timestamp with duplicates removed.
// For a repeated timestamp the last occurrence wins.
func SortCandles(in []models.Candle) []models.Candle {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b models.Candle) int { return a.Timestamp.Compare(b.Timestamp) })
	n := 0
	for i := range out {
		if n > 0 && out[n-1].Timestamp.Equal(out[i].Timestamp) {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}
