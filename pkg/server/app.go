package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"SRLevels/internal/handler/ws"
	mid "SRLevels/internal/middleware"
	"SRLevels/internal/usecase"
	"SRLevels/pkg/config"
	xhttp "SRLevels/pkg/http"
	pkgkafka "SRLevels/pkg/kafka"
	applogger "SRLevels/pkg/logger"
	"SRLevels/pkg/queue"
)

// Components are the long-running parts the App starts and stops. Consumer
// and Queue are nil when Kafka or Redis is disabled.
type Components struct {
	HTTP      *xhttp.Server
	Scheduler *usecase.Scheduler
	Pipeline  *mid.ResultPipeline
	Processor *usecase.ResultProcessor
	Consumer  *pkgkafka.Consumer
	Queue     *queue.RedisQueue
	Hub       *ws.Hub
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	l   *applogger.Logger
	c   Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, l: l.With("app"), c: c}
}

// Run starts every component and blocks until ctx is cancelled, SIGINT or
// SIGTERM arrives, or a component fails. Shutdown always runs before Run
// returns.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.c.Pipeline.Start(ctx)
	if a.c.Queue != nil {
		if err := a.c.Queue.Start(ctx); err != nil {
			return errors.Join(fmt.Errorf("start queue: %w", err), a.shutdown())
		}
	}
	if err := a.c.HTTP.Start(); err != nil {
		return errors.Join(fmt.Errorf("start http: %w", err), a.shutdown())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.c.Scheduler.Run(gctx) })
	if a.c.Consumer != nil {
		g.Go(func() error { return a.c.Consumer.Run(gctx) })
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-a.c.HTTP.Errors():
			return fmt.Errorf("http: %w", err)
		}
	})

	a.l.Info("started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("backend", a.c.Processor.Backend()),
		applogger.Strings("exchanges", a.cfg.Analysis.Exchanges),
		applogger.Strings("timeframes", a.cfg.Analysis.Timeframes),
		applogger.Bool("kafka_consumer", a.c.Consumer != nil),
		applogger.Bool("job_queue", a.c.Queue != nil),
	)

	err := g.Wait()
	if err != nil {
		a.l.Error("component failed", applogger.Error(err))
	} else {
		a.l.Info("shutdown signal received")
	}
	return errors.Join(err, a.shutdown())
}

// shutdown stops intake first, then flushes buffered results and closes
// the sinks.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.c.HTTP.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}
	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop queue: %w", err))
		}
	}

	start := time.Now()
	pending := a.c.Pipeline.Pending()
	a.c.Pipeline.Stop(ctx)
	a.l.Info("pipeline flushed",
		applogger.Int("pending", pending),
		applogger.Duration("took", time.Since(start)))

	if err := a.c.Processor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sinks: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		a.l.Warn("shutdown finished with errors", applogger.Error(err))
	} else {
		a.l.Info("shutdown complete")
	}
	return err
}
