package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a scheduled task. A returned error is logged.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules. Schedules are standard cron
// specs or descriptors such as "@every 10s". A run that is still going when
// its next tick arrives causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		logger: logger,
	}
}

// Add registers job under name. Jobs run with ctx.
func (s *Scheduler) Add(ctx context.Context, name, schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Debug("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, schedule, err)
	}
	return nil
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
