package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "levels.logs",
		Publisher:      pub,
	})
	defer c.Close()

	fields := map[string]interface{}{"symbol": "BTCUSDT"}
	c.AddLog("error", "fetch failed", fields, "x.go:1")
	c.AddLog("error", "fetch failed", fields, "x.go:1")
	c.AddLog("error", "store failed", nil, "y.go:2")

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "levels.logs", pub.topic)
	require.Len(t, pub.batches[0], 2)
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, map[string]int{"fetch failed": 2, "store failed": 1}, counts)
}

func TestLoggerWithAndNop(t *testing.T) {
	l := NewNop().With("detector")
	l.Info("ignored", Float64("price", 1.5), Floats("levels", []float64{1, 2}))
	l.Error("ignored", Error(assert.AnError))
}
