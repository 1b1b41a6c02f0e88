package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"SRLevels/internal/domain/models"
	"SRLevels/pkg/cache"
	applogger "SRLevels/pkg/logger"
)

const schedulerLockKey = "scheduler:run"

// Runner performs one full analysis run.
type Runner interface {
	RunOnce(ctx context.Context) (models.RunStats, error)
}

// Scheduler triggers the runner on a fixed interval. A tick that arrives
// while a run is in progress is skipped. When a cache is set, the run lock
// is also taken there so several replicas do not overlap.
type Scheduler struct {
	runner       Runner
	interval     time.Duration
	runOnStartup bool
	lock         cache.Service
	running      atomic.Bool
	inflight     sync.WaitGroup
	l            *applogger.Logger
}

func NewScheduler(runner Runner, interval time.Duration, runOnStartup bool, lock cache.Service, l *applogger.Logger) *Scheduler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Scheduler{
		runner:       runner,
		interval:     interval,
		runOnStartup: runOnStartup,
		lock:         lock,
		l:            l.With("scheduler"),
	}
}

// Run blocks until ctx is done and every run it started has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.l.Info("scheduler started",
		applogger.Duration("interval", s.interval),
		applogger.Bool("run_on_startup", s.runOnStartup))

	if s.runOnStartup {
		s.Trigger(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.inflight.Wait()
			s.l.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				s.Trigger(ctx)
			}()
		}
	}
}

// Running reports whether a run is in progress in this process.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Trigger runs the runner now unless a run is already in progress. It
// reports whether a run happened.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.l.Warn("previous run still in progress, skipping tick")
		return false
	}
	defer s.running.Store(false)

	if s.lock != nil {
		ok, err := s.lock.TryLock(ctx, schedulerLockKey, s.interval)
		if err != nil {
			s.l.Warn("run lock unavailable, running unguarded", applogger.Error(err))
		} else if !ok {
			s.l.Info("run held by another instance, skipping tick")
			return false
		} else {
			defer func() {
				if err := s.lock.Unlock(context.WithoutCancel(ctx), schedulerLockKey); err != nil {
					s.l.Warn("run lock release failed", applogger.Error(err))
				}
			}()
		}
	}

	stats, err := s.runner.RunOnce(ctx)
	if err != nil {
		s.l.Warn("run interrupted", applogger.Error(err), applogger.Int("done", stats.Total))
	}
	return true
}
