// Package app wires the sync service, integration monitor, alert engine and their
// stores into the components the Lambda and the CLI run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/peteski22/churchbridge/internal/adapters"
	"github.com/peteski22/churchbridge/internal/alert"
	"github.com/peteski22/churchbridge/internal/api"
	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/config"
	"github.com/peteski22/churchbridge/internal/monitor"
	"github.com/peteski22/churchbridge/internal/planningcenter"
	"github.com/peteski22/churchbridge/internal/scheduler"
	"github.com/peteski22/churchbridge/internal/supervisor"
	"github.com/peteski22/churchbridge/internal/sync"
	"github.com/peteski22/churchbridge/internal/transport"
)

// DefaultConcurrency bounds the integrations synced at once by RunAll.
const DefaultConcurrency = 4

// CredentialStore loads integration credentials kept outside the configuration document.
type CredentialStore interface {
	// Credentials returns the stored credentials for an integration.
	Credentials(ctx context.Context, integrationID string) (church.Credentials, error)
}

// HistorySource reads the sync history persisted by earlier processes.
type HistorySource interface {
	// SyncHistory returns up to limit of the integration's entries, newest first.
	SyncHistory(ctx context.Context, integrationID string, limit int) ([]monitor.HistoryEntry, error)
}

// Options holds the dependencies for creating an App.
type Options struct {
	// AlertRecorder persists raised alerts (optional).
	AlertRecorder alert.Recorder

	// ChannelDeps are handed to every notification channel.
	ChannelDeps alert.ChannelDeps

	// Concurrency bounds the integrations synced at once. Zero uses DefaultConcurrency.
	Concurrency int

	// Credentials supplements document credentials (optional).
	Credentials CredentialStore

	// Document is the parsed configuration document.
	Document *config.Document

	// DryRun logs records instead of storing them and never advances sync times.
	DryRun bool

	// HistoryRecorder persists sync history entries (optional).
	HistoryRecorder monitor.HistoryRecorder

	// HistorySource seeds each integration's monitor state at startup (optional).
	HistorySource HistorySource

	// Logger is the structured logger for every component.
	Logger *slog.Logger

	// SinceOverride replaces the stored sync time for every pass (optional).
	SinceOverride *time.Time

	// Sink receives synced records. Defaults to sync.DiscardSink.
	Sink sync.Sink

	// StateStore persists each integration's last sync time.
	StateStore sync.StateStore

	// TokenStore returns the OAuth token store for a Planning Center integration (optional).
	TokenStore func(integrationID string) (planningcenter.TokenStore, error)

	// TransportOptions are applied to every provider client.
	TransportOptions []transport.Option
}

// validate checks that all required Options fields are set.
func (o *Options) validate() error {
	var errs []error
	if o.Document == nil {
		errs = append(errs, errors.New("configuration document is required"))
	}
	if o.StateStore == nil {
		errs = append(errs, errors.New("state store is required"))
	}
	if o.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency cannot be negative, got %d", o.Concurrency))
	}
	return errors.Join(errs...)
}

// App holds the wired components.
type App struct {
	// Alerts evaluates integration status and dispatches alerts.
	Alerts *alert.Engine

	// Monitor tracks integration health.
	Monitor *monitor.Monitor

	// Sync runs sync passes.
	Sync *sync.Service

	concurrency  int
	doc          *config.Document
	integrations *integrationSource
	logger       *slog.Logger
}

// Outcome is the result of one integration's pass within RunAll.
type Outcome struct {
	// Err is the monitored outcome of the pass.
	Err error

	// IntegrationID identifies the integration.
	IntegrationID string

	// Result is nil only when the pass could not start.
	Result *sync.Result
}

// New wires every component from opts. Each integration is registered with the monitor,
// together with its provider's status checker when the provider has one, and its metrics
// are restored from opts.HistorySource when set.
func New(ctx context.Context, opts Options) (*App, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}

	doc := opts.Document
	// One adapter per integration, shared by sync passes and status checks.
	connections := adapters.NewCache(adapters.NewRegistry(adapters.Deps{
		Logger:     logger,
		Options:    opts.TransportOptions,
		TokenStore: opts.TokenStore,
	}))
	source := &integrationSource{credentials: opts.Credentials, doc: doc}

	channelDeps := opts.ChannelDeps
	if channelDeps.Logger == nil {
		channelDeps.Logger = logger
	}
	channels, err := alert.NewChannels(doc.Alerting.Channels, channelDeps)
	if err != nil {
		return nil, fmt.Errorf("creating notification channels: %w", err)
	}

	errorThreshold := config.DefaultErrorThreshold
	if doc.Alerting.ErrorThreshold != nil {
		errorThreshold = *doc.Alerting.ErrorThreshold
	}

	engine, err := alert.New(alert.Config{
		Channels:          channels,
		Cooldown:          doc.Alerting.Cooldown,
		ErrorThreshold:    errorThreshold,
		Logger:            logger,
		Recorder:          opts.AlertRecorder,
		SyncTimeThreshold: doc.Alerting.SyncTimeThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("creating alert engine: %w", err)
	}

	mon, err := monitor.New(monitor.Config{
		Logger:    logger,
		Observers: []monitor.Observer{engine},
		Recorder:  opts.HistoryRecorder,
	})
	if err != nil {
		return nil, fmt.Errorf("creating monitor: %w", err)
	}

	svc, err := sync.New(sync.Config{
		Adapters:      connections,
		DryRun:        opts.DryRun,
		Integrations:  source,
		Logger:        logger,
		MaxPages:      doc.Sync.MaxPages,
		PageSize:      doc.Sync.PageSize,
		SinceOverride: opts.SinceOverride,
		Sink:          opts.Sink,
		StateStore:    opts.StateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sync service: %w", err)
	}

	for _, ic := range doc.Integrations {
		checker := statusChecker(ctx, connections, source, ic.ID, logger)
		if err := mon.RegisterIntegration(ic.ID, church.Provider(ic.Provider), checker); err != nil {
			return nil, fmt.Errorf("registering integration %s: %w", ic.ID, err)
		}
		if opts.HistorySource != nil {
			restoreHistory(ctx, mon, opts.HistorySource, ic.ID, logger)
		}
	}

	return &App{
		Alerts:       engine,
		Monitor:      mon,
		Sync:         svc,
		concurrency:  concurrency,
		doc:          doc,
		integrations: source,
		logger:       logger,
	}, nil
}

// EvaluateAlerts checks every integration's current status against the alert rules.
func (a *App) EvaluateAlerts(ctx context.Context) []alert.Alert {
	return a.Alerts.Evaluate(ctx, a.Monitor.Statuses())
}

// Router returns the operator HTTP API.
func (a *App) Router() (http.Handler, error) {
	return api.NewRouter(api.Config{
		Alerts:  a.Alerts,
		Logger:  a.logger,
		Monitor: a.Monitor,
		Sync:    a.RunSync,
	})
}

// RunAll runs a monitored pass for every integration with sync enabled, several at a time.
// One integration failing never stops the others; every failure is joined into the error.
func (a *App) RunAll(ctx context.Context) ([]Outcome, error) {
	var ids []string
	for _, ic := range a.doc.Integrations {
		if !ic.Sync.Enabled {
			a.logger.Info("integration sync disabled, skipping", "integration_id", ic.ID)
			continue
		}
		ids = append(ids, ic.ID)
	}

	outcomes := make([]Outcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			result, err := a.RunSync(gctx, id, nil)
			outcomes[i] = Outcome{Err: err, IntegrationID: id, Result: result}
			// Failures are reported through the outcomes so the group keeps running.
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.IntegrationID, o.Err))
		}
	}

	return outcomes, errors.Join(errs...)
}

// RunSync runs one sync pass under the monitor. A pass that records entity errors counts
// as a failed run and returns sync.ErrPartialFailure alongside the result.
func (a *App) RunSync(ctx context.Context, integrationID string, entityTypes []church.EntityType) (*sync.Result, error) {
	var result *sync.Result

	err := a.Monitor.MonitorSync(ctx, integrationID, func(ctx context.Context) error {
		r, err := a.Sync.Sync(ctx, integrationID, entityTypes)
		result = r
		if err != nil {
			return err
		}
		return r.Failure()
	})

	return result, err
}

// Scheduler returns the cron scheduler for every enabled integration and periodic
// alert evaluation.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Config{
		AlertInterval: a.doc.Alerting.StatusCheckInterval,
		Evaluate: func(ctx context.Context) {
			a.EvaluateAlerts(ctx)
		},
		Integrations: a.doc.ToDomainTypes(),
		Logger:       a.logger,
		Run: func(ctx context.Context, integrationID string) error {
			_, err := a.RunSync(ctx, integrationID, nil)
			return err
		},
	})
}

// Serve runs the API server, the scheduler and the status checks under a supervisor
// tree until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	router, err := a.Router()
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}

	sched, err := a.Scheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	server := &http.Server{
		Addr:              a.doc.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(a.logger, supervisor.TreeConfig{})
	tree.AddAPIService(supervisor.NewHTTPService(server, 0))
	tree.AddWorkService(sched)
	if interval := a.doc.Alerting.StatusCheckInterval; interval > 0 {
		tree.AddWorkService(supervisor.NewStatusCheckService(a.Monitor, a.doc.IntegrationIDs(), interval, a.logger))
	}

	a.logger.Info("serving", "addr", server.Addr, "integrations", len(a.doc.Integrations))

	err = tree.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// restoreHistory replays an integration's stored history into the monitor. A read failure
// leaves the integration with fresh metrics.
func restoreHistory(ctx context.Context, mon *monitor.Monitor, source HistorySource, integrationID string, logger *slog.Logger) {
	entries, err := source.SyncHistory(ctx, integrationID, monitor.DefaultHistoryLimit)
	if err != nil {
		logger.Warn("sync history unavailable", "integration_id", integrationID, "error", err)
		return
	}
	if err := mon.Restore(integrationID, entries); err != nil {
		logger.Warn("restoring sync history", "integration_id", integrationID, "error", err)
	}
}

// statusChecker returns a status checker for an integration, or nil when the provider
// has none or its client cannot be built.
func statusChecker(
	ctx context.Context,
	connections *adapters.Cache,
	source *integrationSource,
	integrationID string,
	logger *slog.Logger,
) church.StatusChecker {
	integration, err := source.Integration(ctx, integrationID)
	if err != nil {
		logger.Warn("status checks unavailable", "integration_id", integrationID, "error", err)
		return nil
	}

	adapter, err := connections.New(integration)
	if err != nil {
		logger.Warn("status checks unavailable", "integration_id", integrationID, "error", err)
		return nil
	}

	if _, ok := adapter.(church.StatusChecker); !ok {
		return nil
	}

	return &cachedStatusChecker{connections: connections, integrationID: integrationID, source: source}
}

// cachedStatusChecker probes an integration through the adapter its sync passes use.
type cachedStatusChecker struct {
	connections   *adapters.Cache
	integrationID string
	source        *integrationSource
}

// CheckStatus implements church.StatusChecker.
func (c *cachedStatusChecker) CheckStatus(ctx context.Context) error {
	integration, err := c.source.Integration(ctx, c.integrationID)
	if err != nil {
		return err
	}

	adapter, err := c.connections.New(integration)
	if err != nil {
		return fmt.Errorf("creating adapter: %w", err)
	}

	checker, ok := adapter.(church.StatusChecker)
	if !ok {
		return fmt.Errorf("%s adapter has no status check", integration.Provider)
	}

	return checker.CheckStatus(ctx)
}
