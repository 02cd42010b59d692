package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/peteski22/churchbridge/internal/config"
)

const configTemplate = `# ChurchBridge Configuration

integrations:
  # Planning Center: OAuth application from api.planningcenteronline.com/oauth/applications.
  # Run 'churchbridge auth pco' after filling in the client ID and secret.
  - id: pco
    name: Planning Center
    provider: planning_center
    credentials:
      client_id: ""
      client_secret: ""
    sync:
      enabled: true
      frequency: daily
      people: true
      groups: true
      giving: true

  # Breeze: API key from Extensions -> API.
  # - id: breeze
  #   provider: breeze
  #   credentials:
  #     subdomain: ""
  #     api_key: ""
  #   sync:
  #     enabled: true
  #     frequency: daily
  #     people: true

  # CCB: API user from Settings -> API.
  # - id: ccb
  #   provider: ccb
  #   credentials:
  #     subdomain: ""
  #     username: ""
  #     password: ""
  #   sync:
  #     enabled: true
  #     frequency: weekly
  #     people: true
  #     groups: true

  # Tithe.ly: API key from Settings -> Integrations.
  # - id: tithely
  #   provider: tithely
  #   credentials:
  #     api_key: ""
  #   sync:
  #     enabled: true
  #     frequency: hourly
  #     giving: true

alerting:
  # Raise an error alert once an integration has failed more than this many times.
  error_threshold: 5
  # Raise a performance alert when the average sync time exceeds this (0 disables).
  sync_time_threshold: 10m
  # How often provider status checks and alert evaluation run.
  status_check_interval: 5m
  # Suppress repeats of the same alert for an integration (0 disables).
  cooldown: 30m
  channels: []
  # - type: slack
  #   url: https://hooks.slack.com/services/...

server:
  addr: ":8080"
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout())
		},
	}
}

// runInit creates a sample configuration file.
func runInit(out io.Writer) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	configPath, err := config.ConfigFilePath()
	if err != nil {
		return fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	_, _ = fmt.Fprintln(out, "Created config file:", configPath)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the config file with your integrations and credentials")
	_, _ = fmt.Fprintln(out, "  2. Run 'churchbridge auth <integration-id>' for each Planning Center integration")
	_, _ = fmt.Fprintln(out, "  3. Run 'churchbridge validate' to check credentials")
	_, _ = fmt.Fprintln(out, "  4. Run 'churchbridge sync --dry-run --since=2024-01-01T00:00:00Z' to test")

	return nil
}
