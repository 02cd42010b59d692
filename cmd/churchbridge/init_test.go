package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteski22/churchbridge/internal/config"
)

func TestConfigTemplate(t *testing.T) {
	t.Parallel()

	// The template must be a valid document so a fresh install only needs credentials.
	doc, err := config.ParseDocument([]byte(configTemplate))
	require.NoError(t, err)
	require.Equal(t, []string{"pco"}, doc.IntegrationIDs())
	require.Equal(t, 5, *doc.Alerting.ErrorThreshold)
	require.Equal(t, ":8080", doc.Server.Addr)
}

func TestRunInitCreatesConfig(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv().

	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	var out bytes.Buffer
	require.NoError(t, runInit(&out))
	require.Contains(t, out.String(), "churchbridge auth <integration-id>")

	configPath := filepath.Join(tmpHome, ".churchbridge", "config.yaml")
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, configTemplate, string(data))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Join(tmpHome, ".churchbridge"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestRunInitFailsIfConfigExists(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv().

	tmpHome := t.TempDir()
	configDir := filepath.Join(tmpHome, ".churchbridge")
	require.NoError(t, os.MkdirAll(configDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("existing config"), 0o600))

	t.Setenv("HOME", tmpHome)

	err := runInit(&bytes.Buffer{})

	require.Error(t, err)
	require.Contains(t, err.Error(), "config file already exists")
}
