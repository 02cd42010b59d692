package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/peteski22/churchbridge/internal/app"
	"github.com/peteski22/churchbridge/internal/storage"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var (
		addr   string
		dryRun bool
		since  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled syncs, status checks and the operator API until interrupted",
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
			if addr != "" {
				doc.Server.Addr = addr
			}

			var initial time.Time
			if since != "" {
				if initial, err = time.Parse(time.RFC3339, since); err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
			}

			a, err := app.New(cmd.Context(), localOptions(doc, logger, storage.NewMemoryStateStore(initial), dryRun))
			if err != nil {
				return fmt.Errorf("initializing: %w", err)
			}

			return a.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log records instead of storing them")
	cmd.Flags().StringVar(&since, "since", "", "modified-since time for each integration's first pass (RFC 3339)")

	return cmd
}
