// Package scheduler runs the server's periodic maintenance jobs on cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Job struct {
	Name string
	// Spec is a cron spec or descriptor such as "@every 5m".
	Spec string
	Run  func(ctx context.Context) error
	// Timeout bounds one run; zero means no limit beyond the scheduler's ctx.
	Timeout time.Duration
}

type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
	jobs []Job
}

func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "scheduler"))
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		log:  log,
	}
}

// Add registers job. Jobs added after Start are scheduled immediately.
func (s *Scheduler) Add(ctx context.Context, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %q has no run func", job.Name)
	}
	_, err := s.cron.AddFunc(job.Spec, func() { s.run(ctx, job) })
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", job.Name, err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.ErrorContext(ctx, "job failed", slog.String("job", job.Name), slog.Any("err", err))
		return
	}
	s.log.DebugContext(ctx, "job finished", slog.String("job", job.Name), slog.Duration("took", time.Since(start)))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, slog.Any("err", err))...)
}
