// Package scheduler runs the settlement sweep and schedule refresh on cron
// specs inside the API process.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/albapepper/pitlane/internal/ingest"
	"github.com/albapepper/pitlane/internal/sweep"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Runner wraps a cron instance whose jobs share a base context.
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	baseCtx context.Context
}

// New creates a Runner. Overlapping runs of the same job are skipped.
func New(baseCtx context.Context, logger *slog.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	return &Runner{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec (standard five-field or @every form).
func (r *Runner) Add(spec, name string, job Job) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(r.baseCtx); err != nil {
			r.logger.Error("Scheduled job failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}
		r.logger.Info("Scheduled job finished", "job", name, "duration", time.Since(start))
	})
}

func (r *Runner) Start() {
	r.logger.Info("Scheduler started", "jobs", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop halts the schedule and waits for running jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Scheduler stopped")
}

// --------------------------------------------------------------------------
// Standard jobs
// --------------------------------------------------------------------------

// ScheduleIngester refreshes a season's races and odds.
type ScheduleIngester interface {
	ScheduleAndOdds(ctx context.Context, season int) (*ingest.ScheduleResult, error)
}

// Sweeper runs one settlement sweep.
type Sweeper interface {
	Run(ctx context.Context, opts sweep.Options) (*sweep.RunResult, error)
}

// SweepJob runs the settlement sweep with opts.
func SweepJob(s Sweeper, opts sweep.Options, logger *slog.Logger) Job {
	return func(ctx context.Context) error {
		result, err := s.Run(ctx, opts)
		if err != nil {
			return err
		}
		logger.Info("Settlement sweep", "summary", result.Summary())
		return nil
	}
}

// ScheduleJob refreshes the schedule and odds of season.
func ScheduleJob(s ScheduleIngester, season func() int, logger *slog.Logger) Job {
	return func(ctx context.Context) error {
		result, err := s.ScheduleAndOdds(ctx, season())
		if err != nil {
			return err
		}
		logger.Info("Schedule refresh", "summary", result.Summary())
		return nil
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
