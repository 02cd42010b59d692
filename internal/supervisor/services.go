package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPServer is the subset of *http.Server the HTTP service needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server as a supervised service.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// StatusChecker starts and stops periodic provider status checks.
type StatusChecker interface {
	// StartStatusChecks starts checks for one integration.
	StartStatusChecks(ctx context.Context, integrationID string, interval time.Duration) error

	// StopAll stops every running check.
	StopAll()
}

// StatusCheckService keeps status checks running for a fixed set of integrations
// while it is being served.
type StatusCheckService struct {
	checker        StatusChecker
	integrationIDs []string
	interval       time.Duration
	logger         *slog.Logger
}

// NewHTTPService wraps server. A non-positive shutdownTimeout uses 10s.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// NewStatusCheckService creates a service that checks every integration on interval.
func NewStatusCheckService(
	checker StatusChecker,
	integrationIDs []string,
	interval time.Duration,
	logger *slog.Logger,
) *StatusCheckService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCheckService{
		checker:        checker,
		integrationIDs: integrationIDs,
		interval:       interval,
		logger:         logger,
	}
}

// Serve runs the server until ctx is cancelled, then shuts it down gracefully.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String names the service for the supervisor.
func (h *HTTPService) String() string {
	return "http-server"
}

// Serve starts the checks, blocks until ctx is cancelled, then stops them.
func (s *StatusCheckService) Serve(ctx context.Context) error {
	defer s.checker.StopAll()

	for _, id := range s.integrationIDs {
		if err := s.checker.StartStatusChecks(ctx, id, s.interval); err != nil {
			return fmt.Errorf("starting status checks for %s: %w", id, err)
		}
	}
	s.logger.Info("status checks started", "integrations", len(s.integrationIDs), "interval", s.interval)

	<-ctx.Done()
	return ctx.Err()
}

// String names the service for the supervisor.
func (s *StatusCheckService) String() string {
	return "status-checks"
}
