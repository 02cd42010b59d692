package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv().
	tests := map[string]struct {
		envVars      map[string]string
		errFragments []string
		wantSettings *Settings
		wantErr      bool
	}{
		"required vars only": {
			envVars: map[string]string{
				EnvConfigParameterName: "/churchbridge/config",
			},
			wantSettings: &Settings{
				LogLevel: slog.LevelInfo,
				SecretsManager: SecretsManager{
					CredentialsPrefix: "churchbridge/credentials/",
					TokenPrefix:       "churchbridge/token/",
				},
				SSM: SSM{
					ConfigParameterName:  "/churchbridge/config",
					StateParameterPrefix: "/churchbridge/last-sync/",
				},
			},
		},
		"everything set": {
			envVars: map[string]string{
				EnvConfigParameterName:     "/prod/config",
				EnvCredentialsSecretPrefix: "prod/creds/",
				EnvDryRun:                  "true",
				EnvDynamoDBTableName:       "churchbridge-history",
				EnvLogLevel:                "debug",
				EnvStateParameterPrefix:    "/prod/last-sync/",
				EnvTokenSecretPrefix:       "prod/token/",
			},
			wantSettings: &Settings{
				DryRun:   true,
				DynamoDB: DynamoDB{TableName: "churchbridge-history"},
				LogLevel: slog.LevelDebug,
				SecretsManager: SecretsManager{
					CredentialsPrefix: "prod/creds/",
					TokenPrefix:       "prod/token/",
				},
				SSM: SSM{
					ConfigParameterName:  "/prod/config",
					StateParameterPrefix: "/prod/last-sync/",
				},
			},
		},
		"whitespace is trimmed": {
			envVars: map[string]string{
				EnvConfigParameterName: "  /churchbridge/config  ",
				EnvDynamoDBTableName:   "  history  ",
			},
			wantSettings: &Settings{
				DynamoDB: DynamoDB{TableName: "history"},
				LogLevel: slog.LevelInfo,
				SecretsManager: SecretsManager{
					CredentialsPrefix: "churchbridge/credentials/",
					TokenPrefix:       "churchbridge/token/",
				},
				SSM: SSM{
					ConfigParameterName:  "/churchbridge/config",
					StateParameterPrefix: "/churchbridge/last-sync/",
				},
			},
		},
		"missing required var": {
			envVars:      map[string]string{},
			wantErr:      true,
			errFragments: []string{EnvConfigParameterName + " is required"},
		},
		"every problem reported": {
			envVars: map[string]string{
				EnvDryRun:               "maybe",
				EnvLogLevel:             "loud",
				EnvStateParameterPrefix: "relative/",
			},
			wantErr: true,
			errFragments: []string{
				EnvConfigParameterName + " is required",
				EnvDryRun + " must be a boolean",
				EnvLogLevel + `: invalid log level "loud"`,
				EnvStateParameterPrefix + " must start with /",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{
				EnvConfigParameterName,
				EnvCredentialsSecretPrefix,
				EnvDryRun,
				EnvDynamoDBTableName,
				EnvLogLevel,
				EnvStateParameterPrefix,
				EnvTokenSecretPrefix,
			} {
				t.Setenv(key, "")
			}
			for k, v := range tc.envVars {
				t.Setenv(k, v)
			}

			settings, err := Load()

			if tc.wantErr {
				require.Error(t, err)
				for _, fragment := range tc.errFragments {
					require.ErrorContains(t, err, fragment)
				}
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantSettings, settings)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		"empty":   {input: "", want: slog.LevelInfo},
		"debug":   {input: "debug", want: slog.LevelDebug},
		"upper":   {input: "WARN", want: slog.LevelWarn},
		"padded":  {input: " error ", want: slog.LevelError},
		"unknown": {input: "verbose", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLogLevel(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
