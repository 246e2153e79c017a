// Package scheduler runs the pipeline on a cron schedule for serve mode.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/traffic-data-etl/internal/pipeline"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// Scheduler triggers Runner on a cron expression. Runs never overlap: the
// data directory has no locking.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	runner     Runner
	expr       string
	runOnStart bool
	logger     *slog.Logger
}

// New creates a Scheduler evaluating expr in UTC. With runOnStart the first
// run starts as soon as Start is called.
func New(expr string, runOnStart bool, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		runner:     runner,
		expr:       expr,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Start schedules the job and starts the underlying scheduler. Runs use ctx
// and stop when it is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	job, err := s.scheduler.Cron(s.expr).SingletonMode().Do(func() {
		if ctx.Err() != nil {
			return
		}
		s.logger.Info("scheduled run starting")
		res, err := s.runner.Run(ctx)
		if err != nil {
			s.logger.Error("scheduled run failed", "run_id", res.RunID, "error", err)
			return
		}
		s.logger.Info("scheduled run completed", "run_id", res.RunID, "records", res.Report.Total)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.expr, err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "schedule", s.expr, "next_run", job.NextRun())
	if s.runOnStart {
		s.scheduler.RunAll()
	}
	return nil
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
