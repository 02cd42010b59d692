package storage

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStateStore keeps last sync times in process memory. Used by serve mode, where
// watermarks only need to survive between scheduled passes of one process.
type MemoryStateStore struct {
	// initial is returned for integrations that have not synced yet.
	initial time.Time

	// times holds one entry per integration, never expiring.
	times *cache.Cache
}

// NewMemoryStateStore creates a store that reports initial until an integration first syncs.
func NewMemoryStateStore(initial time.Time) *MemoryStateStore {
	return &MemoryStateStore{
		initial: initial,
		times:   cache.New(cache.NoExpiration, 0),
	}
}

// LastSyncTime returns the integration's stored time, or the initial time.
func (s *MemoryStateStore) LastSyncTime(_ context.Context, integrationID string) (time.Time, error) {
	if v, ok := s.times.Get(integrationID); ok {
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	}
	return s.initial, nil
}

// SetLastSyncTime stores the integration's sync time.
func (s *MemoryStateStore) SetLastSyncTime(_ context.Context, integrationID string, t time.Time) error {
	if integrationID == "" {
		return errors.New("integration ID is required")
	}
	s.times.Set(integrationID, t, cache.NoExpiration)
	return nil
}
