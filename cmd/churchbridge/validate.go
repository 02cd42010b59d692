package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/peteski22/churchbridge/internal/adapters"
	"github.com/peteski22/churchbridge/internal/config"
	"github.com/peteski22/churchbridge/internal/transport"
)

func newValidateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and every integration's credentials",
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
			return runValidate(cmd.Context(), cmd.OutOrStdout(), doc, logger)
		},
	}
}

// runValidate asks each provider whether the integration's credentials are accepted.
func runValidate(
	ctx context.Context,
	out io.Writer,
	doc *config.Document,
	logger *slog.Logger,
	opts ...transport.Option,
) error {
	registry := adapters.NewRegistry(adapters.Deps{
		Logger:     logger,
		Options:    opts,
		TokenStore: localTokenStore,
	})

	failed := 0
	for _, integration := range doc.ToDomainTypes() {
		adapter, err := registry.New(integration)
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "FAIL  %s (%s): %v\n", integration.ID, integration.Provider, err)
			continue
		}

		valid, err := adapter.ValidateCredentials(ctx)
		switch {
		case err != nil:
			failed++
			_, _ = fmt.Fprintf(out, "FAIL  %s (%s): %v\n", integration.ID, integration.Provider, err)
		case !valid:
			failed++
			_, _ = fmt.Fprintf(out, "FAIL  %s (%s): credentials rejected\n", integration.ID, integration.Provider)
		default:
			_, _ = fmt.Fprintf(out, "OK    %s (%s)\n", integration.ID, integration.Provider)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d integrations failed validation", failed, len(doc.Integrations))
	}
	return nil
}
