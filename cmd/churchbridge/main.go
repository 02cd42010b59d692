// Package main provides the churchbridge command line interface for running syncs,
// validating credentials and serving the operator API from a workstation or server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/peteski22/churchbridge/internal/config"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	// configPath overrides the local config file location.
	configPath string

	// logLevel is the minimum log level.
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "churchbridge",
		Short:         "Synchronize church management systems and monitor their health",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.churchbridge/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newAuthCmd(opts),
		newInitCmd(),
		newServeCmd(opts),
		newSyncCmd(opts),
		newValidateCmd(opts),
	)

	return root
}

// loadDocument reads the config file named by --config, or the default local file.
func (o *globalOptions) loadDocument() (*config.Document, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.LoadLocal()
}

// newLogger returns a text logger on stderr at the --log-level.
func (o *globalOptions) newLogger() (*slog.Logger, error) {
	level, err := config.ParseLogLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}
