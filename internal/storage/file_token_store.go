package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileTokenStore stores an integration's OAuth refresh token in a local file.
type FileTokenStore struct {
	// integrationID names the integration in error messages.
	integrationID string

	// path is the token file.
	path string
}

// NewFileTokenStore creates a new FileTokenStore that reads/writes to the given path.
func NewFileTokenStore(integrationID string, path string) (*FileTokenStore, error) {
	if path == "" {
		return nil, errors.New("token file path is required")
	}
	return &FileTokenStore{integrationID: integrationID, path: path}, nil
}

// RefreshToken returns the current refresh token from the file.
func (s *FileTokenStore) RefreshToken(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf(
				"token file not found: %s (run 'churchbridge auth %s' to authenticate)",
				s.path,
				s.integrationID,
			)
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty: %s", s.path)
	}

	return token, nil
}

// SaveRefreshToken saves the refresh token to the file, creating its directory if needed.
func (s *FileTokenStore) SaveRefreshToken(_ context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	return nil
}
