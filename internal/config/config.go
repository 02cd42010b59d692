// Package config provides configuration loading from environment variables, the YAML
// configuration document and the local config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	// EnvConfigParameterName is the SSM parameter holding the YAML configuration document.
	EnvConfigParameterName = "CONFIG_PARAMETER_NAME"

	// EnvCredentialsSecretPrefix prefixes the Secrets Manager secret holding each
	// integration's credentials. The integration ID is appended.
	EnvCredentialsSecretPrefix = "CREDENTIALS_SECRET_PREFIX"

	// EnvDryRun logs records instead of storing them when set to true.
	EnvDryRun = "DRY_RUN"

	// EnvDynamoDBTableName is the DynamoDB table for sync history and alerts (optional).
	EnvDynamoDBTableName = "DYNAMODB_TABLE_NAME"

	// EnvLogLevel is the minimum log level (debug, info, warn, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvStateParameterPrefix prefixes the SSM parameter storing each integration's
	// last sync time. The integration ID is appended.
	EnvStateParameterPrefix = "STATE_PARAMETER_PREFIX"

	// EnvTokenSecretPrefix prefixes the Secrets Manager secret holding each Planning
	// Center integration's refresh token. The integration ID is appended.
	EnvTokenSecretPrefix = "TOKEN_SECRET_PREFIX"
)

// DynamoDB holds AWS DynamoDB configuration.
type DynamoDB struct {
	// TableName is the table for sync history and alerts. Empty disables recording.
	TableName string
}

// SecretsManager holds AWS Secrets Manager configuration.
type SecretsManager struct {
	// CredentialsPrefix prefixes each integration's credentials secret.
	CredentialsPrefix string

	// TokenPrefix prefixes each integration's refresh token secret.
	TokenPrefix string
}

// Settings holds all environment configuration for the Lambda.
type Settings struct {
	// DryRun logs records instead of storing them.
	DryRun bool

	// DynamoDB contains AWS DynamoDB settings.
	DynamoDB DynamoDB

	// LogLevel is the minimum log level.
	LogLevel slog.Level

	// SecretsManager contains AWS Secrets Manager settings.
	SecretsManager SecretsManager

	// SSM contains AWS Systems Manager Parameter Store settings.
	SSM SSM
}

// SSM holds AWS Systems Manager Parameter Store configuration.
type SSM struct {
	// ConfigParameterName is the parameter holding the configuration document.
	ConfigParameterName string

	// StateParameterPrefix prefixes each integration's last sync time parameter.
	StateParameterPrefix string
}

func (s *Settings) validate() error {
	var errs []error

	if s.SSM.ConfigParameterName == "" {
		errs = append(errs, requiredError(EnvConfigParameterName))
	}
	if !strings.HasPrefix(s.SSM.StateParameterPrefix, "/") {
		errs = append(errs, fmt.Errorf("%s must start with /", EnvStateParameterPrefix))
	}

	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Settings, error) {
	var errs []error

	dryRun, err := envBool(EnvDryRun)
	if err != nil {
		errs = append(errs, err)
	}

	level, err := envLevel(EnvLogLevel)
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Settings{
		DryRun: dryRun,
		DynamoDB: DynamoDB{
			TableName: strings.TrimSpace(os.Getenv(EnvDynamoDBTableName)),
		},
		LogLevel: level,
		SecretsManager: SecretsManager{
			CredentialsPrefix: envOrDefault(EnvCredentialsSecretPrefix, "churchbridge/credentials/"),
			TokenPrefix:       envOrDefault(EnvTokenSecretPrefix, "churchbridge/token/"),
		},
		SSM: SSM{
			ConfigParameterName:  strings.TrimSpace(os.Getenv(EnvConfigParameterName)),
			StateParameterPrefix: envOrDefault(EnvStateParameterPrefix, "/churchbridge/last-sync/"),
		},
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseLogLevel parses a level name, defaulting to info when empty.
func ParseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(value) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", value)
	}
	return level, nil
}

func envBool(key string) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, value)
	}
	return b, nil
}

func envLevel(key string) (slog.Level, error) {
	level, err := ParseLogLevel(os.Getenv(key))
	if err != nil {
		return level, fmt.Errorf("%s: %w", key, err)
	}
	return level, nil
}

func envOrDefault(key string, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func requiredError(envVar string) error {
	return fmt.Errorf("%s is required", envVar)
}
