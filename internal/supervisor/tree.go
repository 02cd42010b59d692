// Package supervisor runs the long-lived services of serve mode under a suture tree.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration. Zero values use suture's defaults.
type TreeConfig struct {
	// FailureBackoff is how long a failing service waits once the threshold is crossed.
	FailureBackoff time.Duration

	// FailureDecay is the rate, in seconds, at which failures decay.
	FailureDecay float64

	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// ShutdownTimeout bounds how long each service may take to stop.
	ShutdownTimeout time.Duration
}

// Tree is a two-layer supervisor: sync work (scheduler, status checks) and the API.
// A crash in one layer restarts only that layer's services.
type Tree struct {
	api  *suture.Supervisor
	root *suture.Supervisor
	work *suture.Supervisor
}

// NewTree creates the tree. Lifecycle events are logged through logger.
func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}

	spec := func(hook suture.EventHook) suture.Spec {
		return suture.Spec{
			EventHook:        hook,
			FailureBackoff:   cfg.FailureBackoff,
			FailureDecay:     cfg.FailureDecay,
			FailureThreshold: cfg.FailureThreshold,
			Timeout:          cfg.ShutdownTimeout,
		}
	}

	root := suture.New("churchbridge", spec(handler.MustHook()))
	work := suture.New("sync-layer", spec(nil))
	api := suture.New("api-layer", spec(nil))

	root.Add(work)
	root.Add(api)

	return &Tree{api: api, root: root, work: work}
}

// AddAPIService adds a service to the API layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// AddWorkService adds a service to the sync layer.
func (t *Tree) AddWorkService(svc suture.Service) suture.ServiceToken {
	return t.work.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// UnstoppedServiceReport lists services that did not stop within the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
