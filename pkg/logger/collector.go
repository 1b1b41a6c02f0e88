package logger

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Publisher ships a batch of aggregated entries to topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig controls when aggregated entries are flushed.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush at least this often
	CountThreshold int           // flush once this many distinct entries are held
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one distinct (level, caller, message) with the fields
// of its first occurrence and how often it repeated.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated warnings and errors into counted entries so a
// noisy failure costs one message per flush instead of one per occurrence.
type LogCollector struct {
	cfg     CollectionConfig
	now     func() time.Time
	publish time.Duration

	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	c := &LogCollector{
		cfg:     cfg,
		now:     time.Now,
		publish: 30 * time.Second,
		entries: make(map[string]*AggregatedLogEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.loop()
	return c
}

// AddLog records one occurrence.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	key := level + "\x00" + caller + "\x00" + message
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []AggregatedLogEntry
	if len(c.entries) >= c.cfg.CountThreshold {
		batch = c.takeLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		go c.send(batch)
	}
}

func (c *LogCollector) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()
	if batch != nil {
		c.send(batch)
	}
}

// takeLocked empties the map and returns its entries oldest first.
func (c *LogCollector) takeLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	batch := lo.Map(lo.Values(c.entries), func(e *AggregatedLogEntry, _ int) AggregatedLogEntry { return *e })
	slices.SortFunc(batch, func(a, b AggregatedLogEntry) int { return a.FirstSeen.Compare(b.FirstSeen) })
	c.entries = make(map[string]*AggregatedLogEntry)
	return batch
}

func (c *LogCollector) send(batch []AggregatedLogEntry) {
	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.publish)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		// the logger itself may be what feeds us, so report on stderr
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(batch), c.cfg.Topic, err)
	}
}

// Close stops the flush loop and sends whatever is still held.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}
