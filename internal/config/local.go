package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peteski22/churchbridge/internal/church"
)

const (
	configDirName  = ".churchbridge"
	configFileName = "config.yaml"
	tokenDirName   = "tokens"
)

// ConfigDir returns the churchbridge configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// ConfigFilePath returns the path to the local config file.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadLocal loads the configuration document from the local config file.
func LoadLocal() (*Document, error) {
	configPath, err := ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile loads the configuration document from path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s (run 'churchbridge init' to create)", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	if err := doc.validateLocal(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return doc, nil
}

// LocalConfigExists checks if a local config file exists.
func LocalConfigExists() bool {
	configPath, err := ConfigFilePath()
	if err != nil {
		return false
	}
	_, err = os.Stat(configPath)
	return err == nil
}

// TokenFilePath returns the path to the local refresh token file for an integration.
func TokenFilePath(integrationID string) (string, error) {
	if strings.TrimSpace(integrationID) == "" || strings.ContainsAny(integrationID, `/\`) {
		return "", fmt.Errorf("invalid integration ID %q", integrationID)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, tokenDirName, integrationID), nil
}

// validateLocal checks that every integration carries its credentials inline, since the
// local CLI has no credential store.
func (d *Document) validateLocal() error {
	var errs []error
	for i, ic := range d.Integrations {
		c := ic.Credentials
		field := func(name string) error {
			return fmt.Errorf("integrations[%d].credentials.%s is required", i, name)
		}
		switch church.Provider(ic.Provider) {
		case church.ProviderPlanningCenter:
			if c.ClientID == "" {
				errs = append(errs, field("client_id"))
			}
			if c.ClientSecret == "" {
				errs = append(errs, field("client_secret"))
			}
		case church.ProviderBreeze:
			if c.APIKey == "" {
				errs = append(errs, field("api_key"))
			}
			if c.Subdomain == "" {
				errs = append(errs, field("subdomain"))
			}
		case church.ProviderCCB:
			if c.Subdomain == "" {
				errs = append(errs, field("subdomain"))
			}
			if c.Username == "" {
				errs = append(errs, field("username"))
			}
			if c.Password == "" {
				errs = append(errs, field("password"))
			}
		case church.ProviderTithely:
			if c.APIKey == "" {
				errs = append(errs, field("api_key"))
			}
		}
	}
	return errors.Join(errs...)
}
