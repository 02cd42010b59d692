// Package api exposes integration health, sync history and alerts to operators over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peteski22/churchbridge/internal/alert"
	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/monitor"
	"github.com/peteski22/churchbridge/internal/sync"
)

// Alerts is the alert history the API reads and clears.
type Alerts interface {
	// ClearAlerts removes alerts for one integration, or all when integrationID is empty.
	ClearAlerts(integrationID string) int

	// GetAlerts returns the alerts matching the filter.
	GetAlerts(filter alert.Filter) []alert.Alert
}

// Config holds the required configuration for creating the router.
type Config struct {
	// Alerts serves the alert endpoints.
	Alerts Alerts

	// Logger is the structured logger for request logs.
	Logger *slog.Logger

	// Monitor serves the status and history endpoints.
	Monitor Monitor

	// Sync runs a manual, monitored sync pass.
	Sync SyncFunc
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.Alerts == nil {
		errs = append(errs, errors.New("alerts is required"))
	}
	if c.Monitor == nil {
		errs = append(errs, errors.New("monitor is required"))
	}
	if c.Sync == nil {
		errs = append(errs, errors.New("sync function is required"))
	}
	return errors.Join(errs...)
}

// Monitor is the integration health view the API reads.
type Monitor interface {
	// CheckIntegrationStatus probes the provider and returns the reconciled status.
	CheckIntegrationStatus(ctx context.Context, integrationID string) (monitor.IntegrationStatus, error)

	// GetSyncHistory returns the most recent entries, newest first.
	GetSyncHistory(integrationID string, limit int) ([]monitor.HistoryEntry, error)

	// Status returns one integration's status.
	Status(integrationID string) (monitor.IntegrationStatus, error)

	// Statuses returns every integration's status.
	Statuses() []monitor.IntegrationStatus
}

// SyncFunc runs a monitored sync pass. The error is the monitored outcome; a non-nil
// result is returned whenever the pass started.
type SyncFunc func(ctx context.Context, integrationID string, entityTypes []church.EntityType) (*sync.Result, error)

// handler serves the API routes.
type handler struct {
	alerts  Alerts
	logger  *slog.Logger
	monitor Monitor
	sync    SyncFunc
}

// NewRouter builds the HTTP handler for the operator API.
func NewRouter(cfg Config) (http.Handler, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		alerts:  cfg.Alerts,
		logger:  logger,
		monitor: cfg.Monitor,
		sync:    cfg.Sync,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/integrations", func(r chi.Router) {
		r.Get("/", h.listIntegrations)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/status", h.integrationStatus)
			r.Get("/history", h.syncHistory)
			r.Post("/sync", h.triggerSync)
		})
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.listAlerts)
		r.Delete("/", h.clearAlerts)
	})

	return r, nil
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(started),
				"request_id", chimiddleware.GetReqID(r.Context()))
		})
	}
}
