package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	in        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{in: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.in <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.in:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type funcHandler struct {
	topic string
	fn    func([]byte) error
}

func (h funcHandler) Topic() string                            { return h.topic }
func (h funcHandler) Handle(_ context.Context, b []byte) error { return h.fn(b) }

func newTestConsumer(t *testing.T, r *fakeReader, dlq *fakeWriter) *Consumer {
	t.Helper()
	opts := []ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(1, time.Millisecond, 2*time.Millisecond),
		WithConsumerWorkers(2, 4),
	}
	c, err := NewConsumer(nil, opts...)
	require.NoError(t, err)
	c.newReader = func(string) messageReader { return r }
	if dlq != nil {
		c.cfg.DLQTopic = "candles.dlq"
		c.dlq = dlq
	}
	return c
}

func runUntil(t *testing.T, c *Consumer, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Topic: "candles", Offset: 1, Value: []byte("a")},
		kafka.Message{Topic: "candles", Offset: 2, Value: []byte("b")},
	)
	var mu sync.Mutex
	var seen []string
	c := newTestConsumer(t, r, nil)
	c.RegisterHandler(funcHandler{topic: "candles", fn: func(b []byte) error {
		mu.Lock()
		seen = append(seen, string(b))
		mu.Unlock()
		return nil
	}})

	runUntil(t, c, func() bool { return len(r.commits()) == 2 })
	assert.ElementsMatch(t, []int64{1, 2}, r.commits())
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestConsumerParksPoisonMessagesOnDLQ(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "candles", Offset: 7, Key: []byte("BTCUSDT"), Value: []byte("bad")})
	dlq := &fakeWriter{}
	var calls int
	var mu sync.Mutex
	c := newTestConsumer(t, r, dlq)
	c.RegisterHandler(funcHandler{topic: "candles", fn: func([]byte) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("bad payload")
	}})

	runUntil(t, c, func() bool { return len(r.commits()) == 1 })
	msgs := dlq.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "candles.dlq", msgs[0].Topic)
	assert.Equal(t, "candles", Header(msgs[0], "source_topic"))
	assert.Equal(t, "bad payload", Header(msgs[0], "error"))
	mu.Lock()
	assert.Equal(t, 2, calls, "first attempt plus one retry")
	mu.Unlock()
}

func TestConsumerLeavesFailuresUncommittedWithoutDLQ(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Topic: "candles", Offset: 1, Value: []byte("panic")},
		kafka.Message{Topic: "candles", Offset: 2, Value: []byte("ok")},
	)
	c := newTestConsumer(t, r, nil)
	c.RegisterHandler(funcHandler{topic: "candles", fn: func(b []byte) error {
		if string(b) == "panic" {
			panic("boom")
		}
		return nil
	}})

	runUntil(t, c, func() bool { return len(r.commits()) == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []int64{2}, r.commits())
}

func TestConsumerHookCanReject(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "candles", Offset: 3, Value: []byte("x")})
	dlq := &fakeWriter{}
	c := newTestConsumer(t, r, dlq)
	handled := false
	c.RegisterHandler(funcHandler{topic: "candles", fn: func([]byte) error { handled = true; return nil }})
	c.WithConsumerHook(HookFuncs{Before: func(ctx context.Context, _ kafka.Message) (context.Context, error) {
		return ctx, errors.New("rejected")
	}})

	runUntil(t, c, func() bool { return len(dlq.written()) == 1 })
	assert.False(t, handled)
}

func TestRunRequiresHandlers(t *testing.T) {
	c := newTestConsumer(t, newFakeReader(), nil)
	assert.Error(t, c.Run(context.Background()))
}

func TestProducerPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w)
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.PublishBatch(context.Background(), "levels.results", []Message{
		{Key: []byte("BTCUSDT"), Value: map[string]float64{"last_price": 100}, Headers: map[string]string{"content-type": "application/json"}},
		{Key: []byte("ETHUSDT"), Value: "raw"},
	})
	require.NoError(t, err)

	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "levels.results", msgs[0].Topic)
	assert.Equal(t, fixed, msgs[0].Time)
	assert.Equal(t, "application/json", Header(msgs[0], "content-type"))
	var body map[string]float64
	require.NoError(t, json.Unmarshal(msgs[0].Value, &body))
	assert.InDelta(t, 100, body["last_price"], 1e-9)
	assert.Equal(t, []byte("raw"), msgs[1].Value)
}

func TestProducerWrapsWriteErrors(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("leader not available")})
	err := p.Publish(context.Background(), "levels.results", []byte("k"), "v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "levels.results")
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestNewProducerOptions(t *testing.T) {
	_, err := NewProducer(WithCompression("zstd"))
	assert.Error(t, err)

	p, err := NewProducer(
		WithBrokers([]string{"k1:9092", "k2:9092"}),
		WithCompression("lz4"),
		WithRequiredAcks(1),
		WithBatching(10, 4096, time.Second),
		WithAsync(true),
	)
	require.NoError(t, err)
	defer p.Close()

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, kafka.Lz4, w.Compression)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
	assert.Equal(t, 10, w.BatchSize)
	assert.Equal(t, int64(4096), w.BatchBytes)
	assert.True(t, w.Async)
	assert.Contains(t, w.Addr.String(), "k1:9092")
}
