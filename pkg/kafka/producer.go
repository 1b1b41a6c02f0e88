package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerOption adjusts the underlying writer before it is used.
type ProducerOption func(*kafka.Writer)

func WithBrokers(brokers []string) ProducerOption {
	return func(w *kafka.Writer) { w.Addr = kafka.TCP(brokers...) }
}

// WithCompression accepts gzip, snappy, lz4 or zstd. Anything else means
// snappy.
func WithCompression(codec string) ProducerOption {
	return func(w *kafka.Writer) {
		switch codec {
		case "gzip":
			w.Compression = kafka.Gzip
		case "lz4":
			w.Compression = kafka.Lz4
		case "zstd":
			w.Compression = kafka.Zstd
		default:
			w.Compression = kafka.Snappy
		}
	}
}

// WithRequiredAcks takes -1 for all replicas, 0 for none or 1 for the leader.
func WithRequiredAcks(acks int) ProducerOption {
	return func(w *kafka.Writer) { w.RequiredAcks = kafka.RequiredAcks(acks) }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(w *kafka.Writer) { w.MaxAttempts = n }
}

// WithBatching bounds a batch by message count and bytes, and sets how long
// the writer waits to fill one.
func WithBatching(size, bytes int, linger time.Duration) ProducerOption {
	return func(w *kafka.Writer) {
		w.BatchSize, w.BatchBytes, w.BatchTimeout = size, int64(bytes), linger
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(w *kafka.Writer) { w.WriteTimeout, w.ReadTimeout = write, read }
}

// WithAsync makes WriteMessages return before the broker acknowledges.
func WithAsync(async bool) ProducerOption {
	return func(w *kafka.Writer) { w.Async = async }
}

// Message is one record to publish. Value is sent as is when it is []byte
// or string and JSON encoded otherwise.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

// Producer publishes to any topic through one writer. The hash balancer
// keeps every key on one partition.
type Producer struct {
	writer messageWriter
	now    func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	w := &kafka.Writer{
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.Addr == nil || w.Addr.String() == "" {
		return nil, errors.New("kafka: brokers are required")
	}
	return newProducer(w), nil
}

func newProducer(w messageWriter) *Producer {
	initMetrics()
	return &Producer{writer: w, now: time.Now}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch encodes every message first and sends them in one write, so
// an encoding error publishes nothing.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	now := p.now()

	out := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		value, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("kafka encode %s: %w", topic, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: value, Time: now, Headers: toHeaders(m.Headers)}
		size += int64(len(value))
	}

	err := p.writer.WriteMessages(ctx, out...)
	observePublish(topic, size, len(out), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return json.Marshal(v)
}

func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
