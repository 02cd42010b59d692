package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI defines the SSM operations used by the state store and parameter source.
type SSMAPI interface {
	// GetParameter retrieves a parameter from SSM.
	GetParameter(
		ctx context.Context,
		params *ssm.GetParameterInput,
		optFns ...func(*ssm.Options),
	) (*ssm.GetParameterOutput, error)

	// PutParameter stores a parameter in SSM.
	PutParameter(
		ctx context.Context,
		params *ssm.PutParameterInput,
		optFns ...func(*ssm.Options),
	) (*ssm.PutParameterOutput, error)
}

// ParameterSource reads a single SSM parameter, such as the configuration document.
type ParameterSource struct {
	// client is the SSM API client.
	client SSMAPI

	// name is the parameter name.
	name string
}

// NewParameterSource creates a source for the named parameter.
func NewParameterSource(client SSMAPI, name string) (*ParameterSource, error) {
	if client == nil {
		return nil, errors.New("ssm client is required")
	}
	if name == "" {
		return nil, errors.New("parameter name is required")
	}

	return &ParameterSource{client: client, name: name}, nil
}

// Load returns the decrypted parameter value.
func (p *ParameterSource) Load(ctx context.Context) ([]byte, error) {
	output, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(p.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting parameter %s from SSM: %w", p.name, err)
	}

	if output.Parameter == nil || output.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %s has no value", p.name)
	}

	return []byte(*output.Parameter.Value), nil
}

// StateStore keeps each integration's last sync time in AWS SSM Parameter Store, one
// parameter per integration under a common prefix.
type StateStore struct {
	// client is the SSM API client.
	client SSMAPI

	// prefix is prepended to the integration ID to form the parameter name.
	prefix string
}

// NewStateStore creates a new SSM-backed state store. The prefix must be a parameter
// path such as "/churchbridge/last-sync/".
func NewStateStore(client SSMAPI, prefix string) (*StateStore, error) {
	if client == nil {
		return nil, errors.New("ssm client is required")
	}
	if prefix == "" {
		return nil, errors.New("parameter prefix is required")
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &StateStore{
		client: client,
		prefix: prefix,
	}, nil
}

// LastSyncTime returns the start time of the integration's last clean sync, or zero
// if it has never synced.
func (s *StateStore) LastSyncTime(ctx context.Context, integrationID string) (time.Time, error) {
	name, err := s.parameterName(integrationID)
	if err != nil {
		return time.Time{}, err
	}

	output, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		// Parameter not found is not an error - return zero time.
		var notFoundErr *types.ParameterNotFound
		if errors.As(err, &notFoundErr) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("getting parameter from SSM: %w", err)
	}

	if output.Parameter == nil || output.Parameter.Value == nil {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, *output.Parameter.Value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time from parameter %s: %w", name, err)
	}

	return t, nil
}

// SetLastSyncTime records the start time of a clean sync.
func (s *StateStore) SetLastSyncTime(ctx context.Context, integrationID string, t time.Time) error {
	name, err := s.parameterName(integrationID)
	if err != nil {
		return err
	}

	_, err = s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Overwrite: aws.Bool(true),
		Type:      types.ParameterTypeString,
		Value:     aws.String(t.UTC().Format(time.RFC3339)),
	})
	if err != nil {
		return fmt.Errorf("putting parameter to SSM: %w", err)
	}

	return nil
}

func (s *StateStore) parameterName(integrationID string) (string, error) {
	if integrationID == "" {
		return "", errors.New("integration ID is required")
	}
	return s.prefix + integrationID, nil
}
