package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/peteski22/churchbridge/internal/alert"
	"github.com/peteski22/churchbridge/internal/app"
	"github.com/peteski22/churchbridge/internal/config"
	"github.com/peteski22/churchbridge/internal/planningcenter"
	"github.com/peteski22/churchbridge/internal/storage"
	"github.com/peteski22/churchbridge/internal/sync"
	"github.com/peteski22/churchbridge/internal/transport"
)

// Response summarizes one invocation.
//
//nolint:tagliatelle // Lambda output uses snake_case.
type Response struct {
	// Alerts are the alerts raised during the invocation.
	Alerts []alert.Alert `json:"alerts"`

	// Failed lists the integrations whose pass failed.
	Failed []string `json:"failed"`

	// Results holds each started pass, in configuration order.
	Results []*sync.Result `json:"results"`
}

// handler runs one sync pass over every enabled integration per invocation.
type handler struct {
	// dynamo records sync history and alerts. Nil disables recording.
	dynamo storage.DynamoDBAPI

	// logger is the structured logger.
	logger *slog.Logger

	// secrets holds integration credentials and refresh tokens.
	secrets storage.SecretsManagerAPI

	// settings is the environment configuration.
	settings *config.Settings

	// ssm holds the configuration document and sync times.
	ssm storage.SSMAPI

	// transportOptions are applied to every provider client.
	transportOptions []transport.Option
}

// handle loads the configuration document, syncs every enabled integration and returns
// the outcomes. The error joins every failed integration's error.
func (h *handler) handle(ctx context.Context) (*Response, error) {
	h.logger.InfoContext(ctx, "starting sync", "dry_run", h.settings.DryRun)

	a, err := h.newApp(ctx)
	if err != nil {
		return nil, err
	}

	outcomes, runErr := a.RunAll(ctx)

	resp := &Response{
		Alerts:  a.Alerts.GetAlerts(alert.Filter{}),
		Failed:  []string{},
		Results: []*sync.Result{},
	}
	for _, o := range outcomes {
		if o.Err != nil {
			resp.Failed = append(resp.Failed, o.IntegrationID)
		}
		if o.Result != nil {
			resp.Results = append(resp.Results, o.Result)
		}
	}

	h.logger.InfoContext(ctx, "sync complete",
		"integrations", len(outcomes),
		"failed", len(resp.Failed),
		"alerts", len(resp.Alerts))

	return resp, runErr
}

// newApp wires the application from the configuration document and AWS stores.
func (h *handler) newApp(ctx context.Context) (*app.App, error) {
	source, err := storage.NewParameterSource(h.ssm, h.settings.SSM.ConfigParameterName)
	if err != nil {
		return nil, fmt.Errorf("creating parameter source: %w", err)
	}

	data, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading config document: %w", err)
	}

	doc, err := config.ParseDocument(data)
	if err != nil {
		return nil, err
	}

	stateStore, err := storage.NewStateStore(h.ssm, h.settings.SSM.StateParameterPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating state store: %w", err)
	}

	credentials, err := storage.NewCredentialStore(h.secrets, h.settings.SecretsManager.CredentialsPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating credential store: %w", err)
	}

	opts := app.Options{
		Credentials:      credentials,
		Document:         doc,
		DryRun:           h.settings.DryRun,
		Logger:           h.logger,
		StateStore:       stateStore,
		TokenStore:       h.tokenStore,
		TransportOptions: h.transportOptions,
	}

	if h.dynamo != nil {
		recorder, err := storage.NewRecorder(h.dynamo, h.settings.DynamoDB.TableName)
		if err != nil {
			return nil, fmt.Errorf("creating recorder: %w", err)
		}
		opts.AlertRecorder = recorder
		opts.HistoryRecorder = recorder
		opts.HistorySource = recorder
	}

	a, err := app.New(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}

	return a, nil
}

// tokenStore returns the Secrets Manager token store for a Planning Center integration.
func (h *handler) tokenStore(integrationID string) (planningcenter.TokenStore, error) {
	store, err := storage.NewTokenStore(h.secrets, h.settings.SecretsManager.TokenPrefix+integrationID)
	if err != nil {
		return nil, fmt.Errorf("creating token store for %s: %w", integrationID, err)
	}
	return store, nil
}
