package storage

import (
	"context"
	"time"
)

// NoopStateStore is a state store that never persists.
// Used by the local CLI, which passes an explicit --since instead of keeping a watermark.
type NoopStateStore struct {
	since time.Time
}

// NewNoopStateStore creates a new NoopStateStore that reports since for every integration.
func NewNoopStateStore(since time.Time) *NoopStateStore {
	return &NoopStateStore{since: since}
}

// LastSyncTime returns the configured time.
func (s *NoopStateStore) LastSyncTime(_ context.Context, _ string) (time.Time, error) {
	return s.since, nil
}

// SetLastSyncTime does nothing.
func (s *NoopStateStore) SetLastSyncTime(_ context.Context, _ string, _ time.Time) error {
	return nil
}
