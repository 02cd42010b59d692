package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/goccy/go-json"

	"github.com/peteski22/churchbridge/internal/church"
)

// SecretsManagerAPI defines the Secrets Manager operations used by the credential and token stores.
type SecretsManagerAPI interface {
	// GetSecretValue retrieves a secret value.
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)

	// PutSecretValue stores a secret value.
	PutSecretValue(
		ctx context.Context,
		params *secretsmanager.PutSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.PutSecretValueOutput, error)
}

// CredentialStore reads integration credentials stored as JSON secrets, one secret per
// integration under a common prefix.
type CredentialStore struct {
	// client is the Secrets Manager API client.
	client SecretsManagerAPI

	// prefix is prepended to the integration ID to form the secret ID.
	prefix string
}

// NewCredentialStore creates a new Secrets Manager-backed credential store.
func NewCredentialStore(client SecretsManagerAPI, prefix string) (*CredentialStore, error) {
	if client == nil {
		return nil, errors.New("secrets manager client is required")
	}
	if prefix == "" {
		return nil, errors.New("secret prefix is required")
	}

	return &CredentialStore{client: client, prefix: prefix}, nil
}

// Credentials returns the credentials stored for an integration.
func (c *CredentialStore) Credentials(ctx context.Context, integrationID string) (church.Credentials, error) {
	if integrationID == "" {
		return church.Credentials{}, errors.New("integration ID is required")
	}

	value, err := secretString(ctx, c.client, c.prefix+integrationID)
	if err != nil {
		return church.Credentials{}, err
	}

	var creds church.Credentials
	if err := json.Unmarshal([]byte(value), &creds); err != nil {
		return church.Credentials{}, fmt.Errorf("decoding credentials for %s: %w", integrationID, err)
	}

	return creds, nil
}

// TokenStore manages one integration's OAuth refresh token in AWS Secrets Manager.
type TokenStore struct {
	// client is the Secrets Manager API client.
	client SecretsManagerAPI

	// secretID is the name or ARN of the secret storing the refresh token.
	secretID string
}

// NewTokenStore creates a new Secrets Manager-backed token store.
func NewTokenStore(client SecretsManagerAPI, secretID string) (*TokenStore, error) {
	if client == nil {
		return nil, errors.New("secrets manager client is required")
	}
	if secretID == "" {
		return nil, errors.New("secret ID is required")
	}

	return &TokenStore{
		client:   client,
		secretID: secretID,
	}, nil
}

// RefreshToken returns the current refresh token from Secrets Manager.
func (t *TokenStore) RefreshToken(ctx context.Context) (string, error) {
	return secretString(ctx, t.client, t.secretID)
}

// SaveRefreshToken stores a new refresh token in Secrets Manager.
func (t *TokenStore) SaveRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}

	_, err := t.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(t.secretID),
		SecretString: aws.String(token),
	})
	if err != nil {
		return fmt.Errorf("putting secret to Secrets Manager: %w", err)
	}

	return nil
}

func secretString(ctx context.Context, client SecretsManagerAPI, secretID string) (string, error) {
	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %s from Secrets Manager: %w", secretID, err)
	}

	if output.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}

	return *output.SecretString, nil
}
