// Package scheduler runs rent generation and reconciliation on cron schedules
// and exposes both jobs for manual runs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nyumbahub/rentals/internal/billing"
	"github.com/nyumbahub/rentals/internal/config"
	"github.com/nyumbahub/rentals/internal/reconcile"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// Generator is the rent obligation generator
type Generator interface {
	Run(ctx context.Context, evaluationDate time.Time, opts billing.Options) (billing.Summary, error)
}

// Reconciler is the daily reconciliation job
type Reconciler interface {
	Run(ctx context.Context, evaluationDate time.Time, opts reconcile.Options) (reconcile.Summary, error)
}

// Jobs runs the batch jobs for a date in the configured time zone
type Jobs struct {
	generator  Generator
	reconciler Reconciler
	loc        *time.Location
	now        func() time.Time
	logger     *logrus.Logger
}

// NewJobs creates the job runner
func NewJobs(generator Generator, reconciler Reconciler, loc *time.Location, logger *logrus.Logger) *Jobs {
	if loc == nil {
		loc = time.UTC
	}
	return &Jobs{generator: generator, reconciler: reconciler, loc: loc, now: time.Now, logger: logger}
}

// SetClock replaces the time source
func (j *Jobs) SetClock(now func() time.Time) {
	j.now = now
}

// Today returns the current date in the configured time zone
func (j *Jobs) Today() time.Time {
	return dates.Day(j.now().In(j.loc))
}

// GenerateRent bills the month containing evaluationDate
func (j *Jobs) GenerateRent(ctx context.Context, evaluationDate time.Time, dryRun bool) (billing.Summary, error) {
	return j.generator.Run(ctx, evaluationDate, billing.Options{DryRun: dryRun})
}

// Reconcile runs reconciliation as of evaluationDate
func (j *Jobs) Reconcile(ctx context.Context, evaluationDate time.Time, dryRun bool) (reconcile.Summary, error) {
	return j.reconciler.Run(ctx, evaluationDate, reconcile.Options{DryRun: dryRun})
}

// Scheduler triggers the jobs from cron expressions
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *logrus.Logger
}

// New registers the generate and reconcile schedules. An empty expression
// leaves that job unscheduled.
func New(jobs *Jobs, cfg config.ScheduleConfig, logger *logrus.Logger) (*Scheduler, error) {
	cronLogger := cron.VerbosePrintfLogger(logger)
	c := cron.New(
		cron.WithLocation(jobs.loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	s := &Scheduler{cron: c, jobs: jobs, logger: logger}

	if cfg.Generate != "" {
		if _, err := c.AddFunc(cfg.Generate, s.generate); err != nil {
			return nil, fmt.Errorf("invalid generate schedule %q: %w", cfg.Generate, err)
		}
	}
	if cfg.Reconcile != "" {
		if _, err := c.AddFunc(cfg.Reconcile, s.reconcile); err != nil {
			return nil, fmt.Errorf("invalid reconcile schedule %q: %w", cfg.Reconcile, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("entries", len(s.cron.Entries())).Info("scheduler started")
}

// Stop stops scheduling and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stopped before running jobs finished")
	}
}

func (s *Scheduler) generate() {
	summary, err := s.jobs.GenerateRent(context.Background(), s.jobs.Today(), false)
	if err != nil {
		s.logger.WithError(err).Error("scheduled rent generation failed")
		return
	}
	if !summary.OK() {
		s.logger.WithField("failed", summary.Failed).Warn("scheduled rent generation finished with failures")
	}
}

func (s *Scheduler) reconcile() {
	summary, err := s.jobs.Reconcile(context.Background(), s.jobs.Today(), false)
	if err != nil {
		s.logger.WithError(err).Error("scheduled reconciliation failed")
		return
	}
	if !summary.OK() {
		s.logger.WithField("failed", summary.Failed).Warn("scheduled reconciliation finished with failures")
	}
}
