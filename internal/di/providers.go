package di

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	domrepo "SRLevels/internal/domain/repository"
	"SRLevels/internal/domain/service"
	"SRLevels/internal/handler/api"
	"SRLevels/internal/handler/ws"
	mid "SRLevels/internal/middleware"
	internalrepo "SRLevels/internal/repository"
	"SRLevels/internal/service/ratelimit"
	"SRLevels/internal/services/exchange"
	"SRLevels/internal/services/levels"
	"SRLevels/internal/usecase"
	"SRLevels/pkg/cache"
	pkgch "SRLevels/pkg/clickhouse"
	"SRLevels/pkg/config"
	xhttp "SRLevels/pkg/http"
	pkgkafka "SRLevels/pkg/kafka"
	applogger "SRLevels/pkg/logger"
	"SRLevels/pkg/metrics"
	"SRLevels/pkg/queue"
	"SRLevels/pkg/server"
)

// Version is stamped by the build and reported by /health.
var Version = "dev"

// ProvideLogger builds the root logger. When logging.collect_topic is set
// and Kafka is enabled, repeated warnings and errors are aggregated and
// shipped to that topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.CollectTopic == "" || producer == nil {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Logging.CollectInterval,
		CountThreshold: cfg.Logging.CollectThreshold,
		Topic:          cfg.Logging.CollectTopic,
		Publisher:      logPublisher{producer},
	})
	return l, l.RemoveCollector, nil
}

// logPublisher ships aggregated log entries through the Kafka producer.
type logPublisher struct{ p *pkgkafka.Producer }

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.p.Publish(ctx, topic, nil, payload)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideLimiter returns the token buckets shared by exchange clients and
// the API.
func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host, ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithPool(10, 5, time.Hour),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
// The client is closed with the layered cache built on it.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis, or falls back to the
// in-process cache alone.
func ProvideCache(rc *cache.RedisCache, cfg *config.Config) (cache.Service, func()) {
	var c cache.Service
	if rc != nil {
		c = cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Redis.LocalSize),
			cache.WithLayeredMemoryTTL(cfg.Redis.LocalTTL))
	} else {
		c = cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Redis.LocalSize))
	}
	return c, func() { _ = c.Close() }
}

// ProvideKafkaProducer creates a Kafka producer, or returns nil when Kafka
// is disabled. The producer is closed by the result publisher.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithAsync(k.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideResultStore creates the ClickHouse result table and puts the
// read-through cache in front of it.
func ProvideResultStore(ch *pkgch.Client, c cache.Service, cfg *config.Config, l *applogger.Logger) (domrepo.ResultStore, error) {
	store := internalrepo.NewCHResultStore(ch, cfg.ClickHouse.Database, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return internalrepo.NewCachedResultStore(store, c, cfg.Redis.ResultTTL, l), nil
}

// ProvideCandleStore reads locally stored candles for the candle endpoint.
func ProvideCandleStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) domrepo.CandleStore {
	return internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.CandlesDatabase, l)
}

// ProvideResultPublisher wraps the producer, or returns nil without one.
func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ResultPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideDetector builds the level detector from the levels section.
func ProvideDetector(cfg *config.Config, l *applogger.Logger) (service.LevelDetector, error) {
	d, err := levels.NewDetector(cfg.Levels, l)
	if err != nil {
		return nil, fmt.Errorf("levels config: %w", err)
	}
	return d, nil
}

// ProvideExchanges builds a client per configured exchange.
func ProvideExchanges(cfg *config.Config, limiter *ratelimit.Limiter, c cache.Service, l *applogger.Logger) (exchange.Registry, error) {
	return exchange.NewRegistry(cfg, limiter, c, l)
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideResultProcessor routes results to the configured backend and
// pushes stored results to WebSocket subscribers.
func ProvideResultProcessor(
	pub domrepo.ResultPublisher,
	store domrepo.ResultStore,
	m domrepo.Metrics,
	hub *ws.Hub,
	cfg *config.Config,
) (*usecase.ResultProcessor, error) {
	p, err := usecase.NewResultProcessor(pub, store, m, cfg.Backend.Type)
	if err != nil {
		return nil, err
	}
	p.SetNotifier(hub)
	return p, nil
}

// ProvidePipeline buffers results between producers and the processor.
func ProvidePipeline(p *usecase.ResultProcessor, m domrepo.Metrics, cfg *config.Config, l *applogger.Logger) *mid.ResultPipeline {
	b := cfg.Backend
	return mid.NewResultPipeline(p, m,
		mid.WithBufferSize(b.BufferSize),
		mid.WithBatchSize(b.BatchSize),
		mid.WithRetry(b.RetryMax, b.RetryBackoff, 20*b.RetryBackoff),
		mid.WithLogger(l),
	)
}

func ProvideCoordinator(
	cfg *config.Config,
	markets exchange.Registry,
	detector service.LevelDetector,
	pipe *mid.ResultPipeline,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.AnalysisCoordinator {
	a := cfg.Analysis
	tfs := make([]domrepo.Timeframe, 0, len(a.Timeframes))
	for _, tf := range a.Timeframes {
		tfs = append(tfs, domrepo.Timeframe(tf))
	}
	return usecase.NewAnalysisCoordinator(usecase.CoordinatorConfig{
		Exchanges:     a.Exchanges,
		MarketTypes:   a.MarketTypes,
		Timeframes:    tfs,
		Concurrency:   a.Concurrency,
		BatchSize:     a.BatchSize,
		CandlesTotal:  a.CandlesTotal,
		MaxSymbols:    a.MaxSymbols,
		MaxErrorsKept: a.MaxErrorsKept,
		JobTimeout:    a.JobTimeout,
	}, markets, detector, pipe, m, l)
}

// ProvideScheduler runs the coordinator on the configured interval. The
// cache lock keeps replicas from running the same cycle.
func ProvideScheduler(coord *usecase.AnalysisCoordinator, c cache.Service, cfg *config.Config, l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(coord, cfg.Analysis.Interval, cfg.Analysis.RunOnStartup, c, l)
}

// ProvideJobQueue creates the on-demand analysis queue, or returns nil
// without Redis.
func ProvideJobQueue(rc *cache.RedisCache, coord *usecase.AnalysisCoordinator, cfg *config.Config, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.Config{Workers: cfg.Redis.QueueWorkers}, rc.Client(),
		queue.WithKeyPrefix(cfg.Redis.Prefix+":queue:"+cfg.Redis.QueueName))
	q.RegisterJob(usecase.NewAnalyzeJob(coord))
	return q
}

func ProvideLevelsUseCase(
	store domrepo.ResultStore,
	candles domrepo.CandleStore,
	detector service.LevelDetector,
	q *queue.RedisQueue,
) *usecase.LevelsUseCase {
	if q == nil {
		return usecase.NewLevelsUseCase(store, candles, detector, nil)
	}
	return usecase.NewLevelsUseCase(store, candles, detector, q)
}

// ProvideLevelsHandler serves the REST API and probes storage from /health.
func ProvideLevelsHandler(
	l *applogger.Logger,
	uc *usecase.LevelsUseCase,
	limiter *ratelimit.Limiter,
	store domrepo.ResultStore,
	rc *cache.RedisCache,
) *api.LevelsHandler {
	h := api.NewLevelsHandler(l, uc, limiter, Version)
	h.AddHealthCheck("clickhouse", store.Health)
	if rc != nil {
		h.AddHealthCheck("redis", func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() })
	}
	return h
}

// ProvideKafkaConsumer consumes candle batches, or returns nil when Kafka is
// disabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	l *applogger.Logger,
	detector service.LevelDetector,
	pipe *mid.ResultPipeline,
	m domrepo.Metrics,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.CandlesTopic == "" {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers, cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerFetch(cc.MinBytes, cc.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaCandlesHandler(cfg.Kafka.CandlesTopic, detector, pipe, m))
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		After: func(_ context.Context, km kafka.Message, err error) {
			if err != nil {
				m.RecordError("kafka_candles")
				l.Warn("candle batch failed",
					applogger.String("key", string(km.Key)),
					applogger.Int64("offset", km.Offset),
					applogger.Error(err))
			}
		},
	})
	return consumer, nil
}

// ProvideHTTPServer mounts the REST API and the level stream.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.LevelsHandler, hub *ws.Hub) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, time.Second),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	sched *usecase.Scheduler,
	pipe *mid.ResultPipeline,
	proc *usecase.ResultProcessor,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	hub *ws.Hub,
) *server.App {
	return server.New(cfg, l, server.Components{
		HTTP:      srv,
		Scheduler: sched,
		Pipeline:  pipe,
		Processor: proc,
		Consumer:  consumer,
		Queue:     q,
		Hub:       hub,
	})
}
