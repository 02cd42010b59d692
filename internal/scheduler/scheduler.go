// Package scheduler runs sync passes on each integration's configured frequency and
// evaluates alerts on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/peteski22/churchbridge/internal/church"
)

// frequencySpecs maps a sync frequency to its cron descriptor.
var frequencySpecs = map[church.Frequency]string{
	church.FrequencyDaily:  "@daily",
	church.FrequencyHourly: "@hourly",
	church.FrequencyWeekly: "@weekly",
}

// Config holds the configuration for creating a Scheduler.
type Config struct {
	// AlertInterval is how often Evaluate runs. Zero disables periodic evaluation.
	AlertInterval time.Duration

	// Evaluate checks every integration's status against the alert rules.
	Evaluate func(ctx context.Context)

	// Integrations are scheduled when enabled.
	Integrations []church.Integration

	// Location is the time zone for descriptors like @daily. Defaults to UTC.
	Location *time.Location

	// Logger is the structured logger for the scheduler.
	Logger *slog.Logger

	// Run performs one monitored sync pass for an integration.
	Run func(ctx context.Context, integrationID string) error
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.Run == nil {
		errs = append(errs, errors.New("run function is required"))
	}
	if c.AlertInterval < 0 {
		errs = append(errs, fmt.Errorf("alert interval cannot be negative, got %s", c.AlertInterval))
	}
	if c.AlertInterval > 0 && c.Evaluate == nil {
		errs = append(errs, errors.New("evaluate function is required when alert interval is set"))
	}
	for _, integration := range c.Integrations {
		if integration.Sync.Enabled && !integration.Sync.Frequency.Valid() {
			errs = append(errs, fmt.Errorf("integration %s: unknown frequency %q", integration.ID, integration.Sync.Frequency))
		}
	}
	return errors.Join(errs...)
}

// Job is one scheduled entry.
type Job struct {
	// IntegrationID is the integration synced by the job. Empty for alert evaluation.
	IntegrationID string

	// Name identifies the job in logs.
	Name string

	// Schedule is the cron spec.
	Schedule string
}

// Scheduler owns a cron instance for the lifetime of each Serve call.
type Scheduler struct {
	evaluate func(ctx context.Context)
	jobs     []Job
	location *time.Location
	logger   *slog.Logger
	run      func(ctx context.Context, integrationID string) error
}

// New creates a Scheduler. Every schedule is parsed up front so a bad one fails startup.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	var jobs []Job
	for _, integration := range cfg.Integrations {
		if !integration.Sync.Enabled {
			logger.Info("integration sync disabled, not scheduling", "integration_id", integration.ID)
			continue
		}
		jobs = append(jobs, Job{
			IntegrationID: integration.ID,
			Name:          "sync:" + integration.ID,
			Schedule:      frequencySpecs[integration.Sync.Frequency],
		})
	}

	if cfg.AlertInterval > 0 {
		jobs = append(jobs, Job{
			Name:     "alerts",
			Schedule: "@every " + cfg.AlertInterval.String(),
		})
	}

	for _, job := range jobs {
		if _, err := cron.ParseStandard(job.Schedule); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", job.Schedule, job.Name, err)
		}
	}

	return &Scheduler{
		evaluate: cfg.Evaluate,
		jobs:     jobs,
		location: location,
		logger:   logger,
		run:      cfg.Run,
	}, nil
}

// Jobs returns the scheduled entries.
func (s *Scheduler) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// Serve runs the schedule until ctx is cancelled, then waits for running jobs to return.
// A job still running when its next tick fires is skipped for that tick.
func (s *Scheduler) Serve(ctx context.Context) error {
	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, job := range s.jobs {
		if _, err := c.AddFunc(job.Schedule, s.jobFunc(ctx, job)); err != nil {
			return fmt.Errorf("scheduling %s: %w", job.Name, err)
		}
	}

	c.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	<-ctx.Done()

	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")

	return ctx.Err()
}

// String names the service for the supervisor.
func (s *Scheduler) String() string {
	return "scheduler"
}

// jobFunc builds the cron callback for one job.
func (s *Scheduler) jobFunc(ctx context.Context, job Job) func() {
	if job.IntegrationID == "" {
		return func() {
			s.evaluate(ctx)
		}
	}

	return func() {
		started := time.Now()
		if err := s.run(ctx, job.IntegrationID); err != nil {
			s.logger.Error("scheduled sync failed",
				"integration_id", job.IntegrationID,
				"duration", time.Since(started),
				"error", err)
			return
		}
		s.logger.Info("scheduled sync completed",
			"integration_id", job.IntegrationID,
			"duration", time.Since(started))
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

// Error implements cron.Logger.
func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Info implements cron.Logger.
func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}
