// Package scheduler triggers reminder jobs from a cron expression inside the
// server process.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jw6ventures/lifeos/internal/reminders"
)

// JobRunner runs one named reminder job.
type JobRunner interface {
	Run(ctx context.Context, job string) (*reminders.Report, error)
}

// Scheduler runs every reminder job, one after another, on each tick.
type Scheduler struct {
	cron    *cron.Cron
	runner  JobRunner
	jobs    []string
	timeout time.Duration
	logger  zerolog.Logger
}

// New parses spec as a standard five-field cron expression.
func New(spec string, runner JobRunner, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:  runner,
		jobs:    reminders.Jobs,
		timeout: 5 * time.Minute,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse reminder schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in its own goroutine until Stop.
func (s *Scheduler) Start() {
	s.logger.Info().Int("entries", len(s.cron.Entries())).Msg("reminder scheduler started")
	s.cron.Start()
}

// Stop waits for a running tick to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce executes each job in order. A failing job is logged and does
// not prevent the next one.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx = s.logger.WithContext(ctx)
	for _, job := range s.jobs {
		jobCtx, cancel := context.WithTimeout(ctx, s.timeout)
		report, err := s.runner.Run(jobCtx, job)
		cancel()
		if err != nil {
			s.logger.Error().Err(err).Str("job", job).Msg("reminder job failed")
			continue
		}
		s.logger.Info().Str("job", job).Int("emails_sent", report.EmailsSent).Int("errors", len(report.Errors)).Msg("reminder job finished")
	}
}
