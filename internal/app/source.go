package app

import (
	"context"
	"fmt"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/config"
)

// integrationSource serves integrations from the configuration document, overlaying
// credentials from the credential store when one is configured.
type integrationSource struct {
	credentials CredentialStore
	doc         *config.Document
}

// Integration implements sync.IntegrationSource.
func (s *integrationSource) Integration(ctx context.Context, id string) (church.Integration, error) {
	integration, ok := s.doc.Integration(id)
	if !ok {
		return church.Integration{}, fmt.Errorf("integration %q is not configured", id)
	}

	if s.credentials == nil {
		return integration, nil
	}

	stored, err := s.credentials.Credentials(ctx, id)
	if err != nil {
		return church.Integration{}, fmt.Errorf("loading credentials for %s: %w", id, err)
	}
	integration.Credentials = mergeCredentials(integration.Credentials, stored)

	return integration, nil
}

// mergeCredentials returns base with every non-empty field of override applied.
func mergeCredentials(base church.Credentials, override church.Credentials) church.Credentials {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&base.APIKey, override.APIKey)
	set(&base.BaseURL, override.BaseURL)
	set(&base.ClientID, override.ClientID)
	set(&base.ClientSecret, override.ClientSecret)
	set(&base.Password, override.Password)
	set(&base.Subdomain, override.Subdomain)
	set(&base.Username, override.Username)
	return base
}
