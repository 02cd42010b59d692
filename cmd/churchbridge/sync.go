package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/peteski22/churchbridge/internal/app"
	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/config"
	"github.com/peteski22/churchbridge/internal/planningcenter"
	"github.com/peteski22/churchbridge/internal/storage"
	"github.com/peteski22/churchbridge/internal/sync"
)

// syncOptions are the flags of the sync command.
type syncOptions struct {
	// dryRun logs records instead of storing them.
	dryRun bool

	// entities restricts the entity types synced.
	entities []string

	// integrations restricts the integrations synced. Empty syncs every enabled one.
	integrations []string

	// since is the RFC 3339 modified-since cursor.
	since string
}

func newSyncCmd(global *globalOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and print the results as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := global.newLogger()
			if err != nil {
				return err
			}
			doc, err := global.loadDocument()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runSync(cmd.Context(), cmd.OutOrStdout(), doc, opts, logger)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log records instead of storing them")
	cmd.Flags().StringSliceVar(&opts.entities, "entity", nil, "entity types to sync (people, groups, giving)")
	cmd.Flags().StringSliceVar(&opts.integrations, "integration", nil, "integration IDs to sync (default: every enabled integration)")
	cmd.Flags().StringVar(&opts.since, "since", "", "only sync records modified after this RFC 3339 time")

	return cmd
}

// runSync runs the requested passes and writes their results to out.
func runSync(ctx context.Context, out io.Writer, doc *config.Document, opts *syncOptions, logger *slog.Logger) error {
	var since time.Time
	if opts.since != "" {
		t, err := time.Parse(time.RFC3339, opts.since)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		since = t
	}

	entityTypes := make([]church.EntityType, 0, len(opts.entities))
	for _, e := range opts.entities {
		entityType := church.EntityType(e)
		if !entityType.Valid() {
			return fmt.Errorf("invalid --entity %q: must be one of %v", e, church.AllEntityTypes)
		}
		entityTypes = append(entityTypes, entityType)
	}

	a, err := app.New(ctx, localOptions(doc, logger, storage.NewNoopStateStore(since), opts.dryRun))
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}

	var (
		errs    []error
		results []*sync.Result
	)

	if len(opts.integrations) == 0 && len(entityTypes) == 0 {
		outcomes, err := a.RunAll(ctx)
		for _, o := range outcomes {
			if o.Result != nil {
				results = append(results, o.Result)
			}
		}
		if err != nil {
			errs = append(errs, err)
		}
	} else {
		ids := opts.integrations
		if len(ids) == 0 {
			ids = doc.IntegrationIDs()
		}
		for _, id := range ids {
			result, err := a.RunSync(ctx, id, entityTypes)
			if result != nil {
				results = append(results, result)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			}
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	return errors.Join(errs...)
}

// localOptions returns the app options for running from a workstation: inline credentials
// and Planning Center refresh tokens in the local config directory.
func localOptions(doc *config.Document, logger *slog.Logger, state sync.StateStore, dryRun bool) app.Options {
	return app.Options{
		Document:   doc,
		DryRun:     dryRun,
		Logger:     logger,
		StateStore: state,
		TokenStore: localTokenStore,
	}
}

// localTokenStore returns the token file store for a Planning Center integration. An
// integration without a token file authenticates with its credentials as a personal
// access token.
func localTokenStore(integrationID string) (planningcenter.TokenStore, error) {
	path, err := config.TokenFilePath(integrationID)
	if err != nil {
		return nil, fmt.Errorf("resolving token path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("checking token file: %w", err)
	}
	store, err := storage.NewFileTokenStore(integrationID, path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
