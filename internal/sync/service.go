package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/metrics"
)

// Config holds the required configuration for creating a Service.
type Config struct {
	// Adapters builds the provider adapter for each integration.
	Adapters AdapterFactory

	// DryRun logs records instead of writing them and leaves the sync time untouched.
	DryRun bool

	// Integrations loads integration records.
	Integrations IntegrationSource

	// Logger is the structured logger for the service.
	Logger *slog.Logger

	// MaxPages bounds the pages fetched per entity type. Zero uses the church.FetchAll default.
	MaxPages int

	// PageSize is the requested page size. Zero uses each adapter's default.
	PageSize int

	// SinceOverride optionally overrides the last sync time.
	SinceOverride *time.Time

	// Sink receives every page of records. Defaults to DiscardSink.
	Sink Sink

	// StateStore manages the per-integration sync watermark.
	StateStore StateStore
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.Adapters == nil {
		errs = append(errs, errors.New("adapter factory is required"))
	}
	if c.Integrations == nil {
		errs = append(errs, errors.New("integration source is required"))
	}
	if c.StateStore == nil {
		errs = append(errs, errors.New("state store is required"))
	}
	if c.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("max pages cannot be negative, got %d", c.MaxPages))
	}
	if c.PageSize < 0 {
		errs = append(errs, fmt.Errorf("page size cannot be negative, got %d", c.PageSize))
	}
	return errors.Join(errs...)
}

// Service runs sync passes.
type Service struct {
	adapters      AdapterFactory
	dryRun        bool
	integrations  IntegrationSource
	logger        *slog.Logger
	maxPages      int
	pageSize      int
	sinceOverride *time.Time
	sink          Sink
	stateStore    StateStore
}

// New creates a new sync service.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sink := cfg.Sink
	if sink == nil {
		sink = DiscardSink{}
	}
	if cfg.DryRun {
		sink = newDryRunSink(logger)
	}

	return &Service{
		adapters:      cfg.Adapters,
		dryRun:        cfg.DryRun,
		integrations:  cfg.Integrations,
		logger:        logger,
		maxPages:      cfg.MaxPages,
		pageSize:      cfg.PageSize,
		sinceOverride: cfg.SinceOverride,
		sink:          sink,
		stateStore:    cfg.StateStore,
	}, nil
}

// Sync runs one pass for the integration over entityTypes. An empty entityTypes syncs
// every type the integration enables. Requested types the integration disables are skipped.
//
// A failure in one entity type is counted in that type's stats and never stops the others.
// The returned error is reserved for failures before any entity type is attempted; it is
// also recorded in Result.Err.
func (s *Service) Sync(ctx context.Context, integrationID string, entityTypes []church.EntityType) (*Result, error) {
	result := &Result{
		DryRun:        s.dryRun,
		IntegrationID: integrationID,
		RunID:         uuid.NewString(),
		StartedAt:     time.Now(),
	}

	integration, adapter, err := s.prepare(ctx, integrationID, entityTypes)
	if err != nil {
		return s.abandon(result, err)
	}

	since, err := s.since(ctx, integrationID)
	if err != nil {
		return s.abandon(result, err)
	}
	result.Since = since

	if len(entityTypes) == 0 {
		entityTypes = integration.Sync.EntityTypes()
	}
	entityTypes = uniqueEntityTypes(entityTypes)

	logger := s.logger.With("integration_id", integrationID, "provider", integration.Provider, "run_id", result.RunID)
	logger.Info("starting sync", "since", since, "entity_types", entityTypes, "dry_run", s.dryRun)

	params := church.ListParams{Limit: s.pageSize, ModifiedSince: since}
	attempted := 0

	for _, entityType := range entityTypes {
		if !integration.Sync.Allows(entityType) {
			logger.Info("entity type disabled, skipping", "entity_type", entityType)
			result.Skipped = append(result.Skipped, entityType)
			continue
		}

		stats := result.Stats.For(entityType)
		s.syncEntity(ctx, adapter, integration, entityType, params, stats)
		attempted++

		metrics.RecordEntity(string(integration.Provider), string(entityType), stats.Synced, stats.Errors)

		if stats.Errors > 0 {
			logger.Error("entity type synced with errors",
				"entity_type", entityType,
				"synced", stats.Synced,
				"errors", stats.Errors,
				"last_error", stats.LastError)
		} else {
			logger.Info("entity type synced", "entity_type", entityType, "synced", stats.Synced)
		}
	}

	result.FinishedAt = time.Now()

	if !s.dryRun && attempted > 0 && result.Errors() == 0 {
		if err := s.stateStore.SetLastSyncTime(ctx, integrationID, result.StartedAt); err != nil {
			logger.Error("failed to update last sync time", "error", err)
		}
	}

	logger.Info("sync completed",
		"synced", result.Synced(),
		"errors", result.Errors(),
		"skipped_types", len(result.Skipped),
		"duration", result.Duration(),
		"dry_run", s.dryRun)

	return result, nil
}

// abandon records a pass-fatal error.
func (s *Service) abandon(result *Result, err error) (*Result, error) {
	result.Err = err
	result.FinishedAt = time.Now()

	s.logger.Error("sync abandoned", "integration_id", result.IntegrationID, "run_id", result.RunID, "error", err)

	return result, err
}

// prepare loads the integration, checks the requested entity types and builds the adapter.
func (s *Service) prepare(
	ctx context.Context,
	integrationID string,
	entityTypes []church.EntityType,
) (church.Integration, church.Adapter, error) {
	for _, e := range entityTypes {
		if !e.Valid() {
			return church.Integration{}, nil, fmt.Errorf("unknown entity type %q", e)
		}
	}

	integration, err := s.integrations.Integration(ctx, integrationID)
	if err != nil {
		return church.Integration{}, nil, fmt.Errorf("loading integration: %w", err)
	}

	if !integration.Provider.Valid() {
		return church.Integration{}, nil, fmt.Errorf("%w: %q", ErrUnknownProvider, integration.Provider)
	}

	adapter, err := s.adapters.New(integration)
	if err != nil {
		return church.Integration{}, nil, fmt.Errorf("creating adapter: %w", err)
	}

	return integration, adapter, nil
}

// uniqueEntityTypes drops repeated entity types, keeping the first occurrence of each.
func uniqueEntityTypes(entityTypes []church.EntityType) []church.EntityType {
	seen := make(map[church.EntityType]bool, len(entityTypes))
	out := make([]church.EntityType, 0, len(entityTypes))
	for _, e := range entityTypes {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// since returns the modified-since cursor for the pass.
func (s *Service) since(ctx context.Context, integrationID string) (time.Time, error) {
	if s.sinceOverride != nil {
		s.logger.Info("using override sync time", "integration_id", integrationID, "since", *s.sinceOverride)
		return *s.sinceOverride, nil
	}

	since, err := s.stateStore.LastSyncTime(ctx, integrationID)
	if err != nil {
		return time.Time{}, fmt.Errorf("getting last sync time: %w", err)
	}

	if since.IsZero() {
		s.logger.Info("initial sync detected", "integration_id", integrationID)
	}

	return since, nil
}

// syncEntity fetches every page of one entity type into the sink, recording outcomes in stats.
func (s *Service) syncEntity(
	ctx context.Context,
	adapter church.Adapter,
	integration church.Integration,
	entityType church.EntityType,
	params church.ListParams,
	stats *EntityStats,
) {
	var err error

	switch entityType {
	case church.EntityPeople:
		err = syncPages(ctx, adapter.People, params, s.maxPages, stats, func(ctx context.Context, records []church.Person) error {
			return s.sink.People(ctx, integration, records)
		})
	case church.EntityGroups:
		err = syncPages(ctx, adapter.Groups, params, s.maxPages, stats, func(ctx context.Context, records []church.Group) error {
			return s.sink.Groups(ctx, integration, records)
		})
	case church.EntityGiving:
		err = syncPages(ctx, adapter.Donations, params, s.maxPages, stats, func(ctx context.Context, records []church.Donation) error {
			return s.sink.Donations(ctx, integration, records)
		})
	}

	if err != nil {
		stats.Errors++
		stats.LastError = err.Error()
	}
}

// syncPages walks every page in cursor order. Undecodable records and pages the sink
// rejects are counted as errors without stopping the walk; a fetch error stops it.
func syncPages[T any](
	ctx context.Context,
	fetch church.PageFunc[T],
	params church.ListParams,
	maxPages int,
	stats *EntityStats,
	store func(context.Context, []T) error,
) error {
	return church.FetchAll(ctx, fetch, params, maxPages, func(page *church.Page[T]) error {
		if page.Skipped > 0 {
			stats.Errors += page.Skipped
			stats.LastError = fmt.Sprintf("%d records could not be decoded", page.Skipped)
		}

		if len(page.Data) == 0 {
			return nil
		}

		if err := store(ctx, page.Data); err != nil {
			stats.Errors++
			stats.LastError = fmt.Sprintf("storing page: %v", err)
			return nil
		}
		stats.Synced += len(page.Data)

		return nil
	})
}
