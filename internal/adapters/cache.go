package adapters

import (
	"sync"

	"github.com/peteski22/churchbridge/internal/church"
)

// Factory builds an adapter for one integration.
type Factory interface {
	// New returns the adapter for integration.
	New(integration church.Integration) (church.Adapter, error)
}

// Cache keeps one adapter per integration so its rate limiter, circuit breaker and
// token manager outlive a single pass. It is safe for concurrent use.
type Cache struct {
	// entries holds the adapter built for each integration ID.
	entries map[string]cacheEntry

	// factory builds adapters on a miss.
	factory Factory

	// mu guards entries.
	mu sync.Mutex
}

// cacheEntry is an adapter and the connection settings it was built from.
type cacheEntry struct {
	adapter     church.Adapter
	credentials church.Credentials
	provider    church.Provider
}

// NewCache returns a cache that builds adapters with factory.
func NewCache(factory Factory) *Cache {
	return &Cache{
		entries: map[string]cacheEntry{},
		factory: factory,
	}
}

// New returns the adapter already built for integration.ID, building one on first use.
// A changed provider or changed credentials replace the cached adapter.
func (c *Cache) New(integration church.Integration) (church.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[integration.ID]; ok &&
		e.provider == integration.Provider &&
		e.credentials == integration.Credentials {
		return e.adapter, nil
	}

	adapter, err := c.factory.New(integration)
	if err != nil {
		return nil, err
	}

	c.entries[integration.ID] = cacheEntry{
		adapter:     adapter,
		credentials: integration.Credentials,
		provider:    integration.Provider,
	}

	return adapter, nil
}
