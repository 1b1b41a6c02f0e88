package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	applogger "SRLevels/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// messageReader is the part of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fans messages of the registered topics out to a worker pool.
// Offsets are committed after the handler succeeds, or after a message that
// exhausted its retries was parked on the DLQ.
type Consumer struct {
	cfg       *ConsumerConfig
	handlers  map[string]MessageHandler
	hook      ConsumerHook
	logger    *applogger.Logger
	newReader func(topic string) messageReader
	dlq       messageWriter
}

type delivery struct {
	km     kafka.Message
	reader messageReader
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(l *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "srlevels",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if l == nil {
		l = applogger.NewNop()
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
		logger:   l.With("kafka_consumer"),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	initMetrics()
	return c, nil
}

// RegisterHandler registers a message handler for its topic. A second
// handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.logger.Warn("handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Run consumes until ctx is cancelled, then closes readers and the DLQ
// writer. Messages already queued are finished before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}

	queue := make(chan delivery, c.cfg.BufferSize)
	fetchers, fctx := errgroup.WithContext(ctx)
	readers := make([]messageReader, 0, len(c.handlers))
	for topic := range c.handlers {
		r := c.newReader(topic)
		readers = append(readers, r)
		fetchers.Go(func() error { return c.fetch(fctx, topic, r, queue) })
		c.logger.Info("subscribed", applogger.String("topic", topic), applogger.String("group", c.cfg.GroupID))
	}

	var workers errgroup.Group
	for i := 0; i < c.cfg.WorkerCount; i++ {
		workers.Go(func() error {
			for d := range queue {
				c.process(ctx, d)
			}
			return nil
		})
	}

	err := fetchers.Wait()
	close(queue)
	_ = workers.Wait()

	for _, r := range readers {
		if cerr := r.Close(); cerr != nil {
			c.logger.Warn("close reader", applogger.Error(cerr))
		}
	}
	if c.dlq != nil {
		_ = c.dlq.Close()
	}
	c.logger.Info("stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader, queue chan<- delivery) error {
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("fetch message", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if km.Topic == "" {
			km.Topic = topic
		}
		select {
		case queue <- delivery{km: km, reader: r}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(queue)))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// process runs the handler with retries. The handler context is detached
// from shutdown so in-flight work completes.
func (c *Consumer) process(ctx context.Context, d delivery) {
	topic := d.km.Topic
	handler, ok := c.handlers[topic]
	if !ok {
		return
	}
	start := time.Now()
	hctx := context.WithoutCancel(ctx)

	var err error
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(hctx, handler, d.km)
		if err == nil || attempt > c.cfg.RetryMax {
			break
		}
		c.logger.Warn("handler failed, retrying",
			applogger.String("topic", topic),
			applogger.Int("attempt", attempt),
			applogger.Error(err))
		time.Sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt))
	}

	result := "ok"
	commit := err == nil
	if err != nil {
		result = "failed"
		c.logger.Error("handler gave up",
			applogger.String("topic", topic),
			applogger.Int64("offset", d.km.Offset),
			applogger.Error(err))
		if c.dlq != nil {
			commit = c.toDLQ(hctx, d.km, err)
			if commit {
				result = "dlq"
			}
		}
	}
	if commit {
		if cerr := c.commitWithRetry(hctx, d.reader, d.km, 3); cerr != nil {
			c.logger.Error("commit offset", applogger.String("topic", topic), applogger.Error(cerr))
		}
	}
	consumerMsgsTotal.WithLabelValues(topic, result).Inc()
	consumerHandleLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleOnce(ctx context.Context, h MessageHandler, km kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	hctx, err := c.hook.BeforeHandle(ctx, km)
	if err != nil {
		return err
	}
	err = h.Handle(hctx, km.Value)
	c.hook.AfterHandle(hctx, km, err)
	return err
}

func (c *Consumer) toDLQ(ctx context.Context, km kafka.Message, cause error) bool {
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(km.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.logger.Error("write dlq", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commitWithRetry(ctx context.Context, r messageReader, km kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = r.CommitMessages(cctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	return err
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min << uint(attempt-1)
	if exp <= 0 || exp > max {
		exp = max
	}
	// jitter up to 50%
	return exp - time.Duration(rand.Int63n(int64(exp)/2+1))
}
