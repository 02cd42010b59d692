// Package adapters resolves a configured provider to a church.Adapter constructor.
package adapters

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/peteski22/churchbridge/internal/breeze"
	"github.com/peteski22/churchbridge/internal/ccb"
	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/planningcenter"
	"github.com/peteski22/churchbridge/internal/tithely"
	"github.com/peteski22/churchbridge/internal/transport"
)

// Constructor builds an adapter for one integration.
type Constructor func(integration church.Integration, deps Deps) (church.Adapter, error)

// Deps holds shared dependencies handed to every constructor.
type Deps struct {
	// Logger receives request and retry logs.
	Logger *slog.Logger

	// Options are appended after the integration-derived transport options.
	Options []transport.Option

	// TokenStore returns the OAuth token store for an integration, or nil to use
	// static credentials. An error fails adapter construction.
	TokenStore func(integrationID string) (planningcenter.TokenStore, error)
}

// Registry maps providers to constructors. It is safe for concurrent use.
type Registry struct {
	// constructors holds one constructor per provider.
	constructors map[church.Provider]Constructor

	// deps is passed to every constructor.
	deps Deps

	// mu guards constructors.
	mu sync.RWMutex
}

// NewRegistry returns a registry with every built-in provider registered.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := &Registry{
		constructors: map[church.Provider]Constructor{},
		deps:         deps,
	}
	r.Register(church.ProviderBreeze, newBreeze)
	r.Register(church.ProviderCCB, newCCB)
	r.Register(church.ProviderPlanningCenter, newPlanningCenter)
	r.Register(church.ProviderTithely, newTithely)

	return r
}

// New builds the adapter for integration. An unregistered provider returns an error
// wrapping church.ErrUnknownProvider.
func (r *Registry) New(integration church.Integration) (church.Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[integration.Provider]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", church.ErrUnknownProvider, integration.Provider)
	}

	adapter, err := ctor(integration, r.deps)
	if err != nil {
		return nil, fmt.Errorf("creating %s adapter for %s: %w", integration.Provider, integration.ID, err)
	}

	return adapter, nil
}

// Providers returns the registered providers in sorted order.
func (r *Registry) Providers() []church.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]church.Provider, 0, len(r.constructors))
	for p := range r.constructors {
		providers = append(providers, p)
	}
	slices.Sort(providers)

	return providers
}

// Register adds or replaces the constructor for provider.
func (r *Registry) Register(provider church.Provider, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.constructors[provider] = ctor
}

// transportOptions derives the transport options shared by every provider.
func transportOptions(integration church.Integration, deps Deps) []transport.Option {
	opts := []transport.Option{
		transport.WithLogger(deps.Logger.With("integration_id", integration.ID)),
	}
	if integration.Credentials.BaseURL != "" {
		opts = append(opts, transport.WithBaseURL(integration.Credentials.BaseURL))
	}
	return append(opts, deps.Options...)
}

func newBreeze(integration church.Integration, deps Deps) (church.Adapter, error) {
	creds := integration.Credentials
	return breeze.NewClient(breeze.Config{
		APIKey:    creds.APIKey,
		Subdomain: creds.Subdomain,
	}, transportOptions(integration, deps)...)
}

func newCCB(integration church.Integration, deps Deps) (church.Adapter, error) {
	creds := integration.Credentials
	return ccb.NewClient(ccb.Config{
		Password:  creds.Password,
		Subdomain: creds.Subdomain,
		Username:  creds.Username,
	}, transportOptions(integration, deps)...)
}

func newPlanningCenter(integration church.Integration, deps Deps) (church.Adapter, error) {
	creds := integration.Credentials
	cfg := planningcenter.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}
	if deps.TokenStore != nil {
		store, err := deps.TokenStore(integration.ID)
		if err != nil {
			return nil, fmt.Errorf("creating token store: %w", err)
		}
		cfg.TokenStore = store
	}
	return planningcenter.NewClient(cfg, transportOptions(integration, deps)...)
}

func newTithely(integration church.Integration, deps Deps) (church.Adapter, error) {
	return tithely.NewClient(integration.Credentials.APIKey, transportOptions(integration, deps)...)
}
