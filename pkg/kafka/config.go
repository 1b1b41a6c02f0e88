package kafka

import "time"

type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig is what NewConsumer builds its readers and worker pool from.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerWorkers sets how many goroutines handle messages and how many
// fetched messages may wait for them. Zero keeps the default.
func WithConsumerWorkers(count, buffer int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
		if buffer > 0 {
			c.BufferSize = buffer
		}
	}
}

// WithConsumerRetry bounds handler retries. The wait between attempts grows
// from backoffMin to backoffMax with jitter.
func WithConsumerRetry(attempts int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax, c.BackoffMin, c.BackoffMax = attempts, backoffMin, backoffMax
	}
}

// WithConsumerDLQ names the topic that receives messages whose retries ran
// out. Empty disables dead lettering.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) { c.MinBytes, c.MaxBytes = minBytes, maxBytes }
}
