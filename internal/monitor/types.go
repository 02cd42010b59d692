// Package monitor tracks the health of each integration: its status state machine,
// rolling sync metrics, a bounded sync history and periodic provider status checks.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/peteski22/churchbridge/internal/church"
)

const (
	// StateActive means the last sync succeeded.
	StateActive State = "active"

	// StateError means the last sync or status check failed.
	StateError State = "error"

	// StateInactive means the integration has not synced yet.
	StateInactive State = "inactive"
)

var (
	// ErrAlreadyRegistered is returned when registering an integration twice.
	ErrAlreadyRegistered = errors.New("integration already registered")

	// ErrNotRegistered is returned for an integration the monitor does not know.
	ErrNotRegistered = errors.New("integration not registered")
)

// HistoryEntry records one monitored sync run.
type HistoryEntry struct {
	// Duration is how long the run took.
	Duration time.Duration

	// Error is the failure message, if the run failed.
	Error string

	// ID uniquely identifies the entry.
	ID string

	// IntegrationID is the integration the run belongs to.
	IntegrationID string

	// Success reports whether the run succeeded.
	Success bool

	// Timestamp is when the run started.
	Timestamp time.Time
}

// HistoryRecorder persists history entries outside the process.
type HistoryRecorder interface {
	// RecordSync stores one entry.
	RecordSync(ctx context.Context, entry HistoryEntry) error
}

// IntegrationStatus is a snapshot of one integration's health.
//
//nolint:tagliatelle // Operator API uses snake_case.
type IntegrationStatus struct {
	// Error is the message that put the integration into StateError.
	Error string `json:"error,omitempty"`

	// IntegrationID identifies the integration.
	IntegrationID string `json:"integration_id"`

	// LastSync is when the last successful sync finished.
	LastSync *time.Time `json:"last_sync"`

	// Metrics holds the rolling sync metrics.
	Metrics Metrics `json:"metrics"`

	// Provider is the integration's provider.
	Provider church.Provider `json:"provider"`

	// Status is the current state.
	Status State `json:"status"`
}

// Metrics holds rolling sync metrics for one integration.
type Metrics struct {
	// AverageSyncTime is the running mean duration of successful syncs.
	AverageSyncTime time.Duration

	// ErrorCount counts failed syncs.
	ErrorCount int

	// LastError is the most recent sync failure message.
	LastError string

	// SyncCount counts successful syncs.
	SyncCount int
}

// Observer is notified after every status change.
type Observer interface {
	// ObserveStatus receives the new status. It must not block for long.
	ObserveStatus(ctx context.Context, status IntegrationStatus)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, status IntegrationStatus)

// State is an integration's health state.
type State string

// metricsJSON is the wire shape of Metrics.
//
//nolint:tagliatelle // Operator API uses snake_case.
type metricsJSON struct {
	AverageSyncTime float64 `json:"average_sync_time_ms"`
	ErrorCount      int     `json:"error_count"`
	LastError       string  `json:"last_error,omitempty"`
	SyncCount       int     `json:"sync_count"`
}

// historyEntryJSON is the wire shape of HistoryEntry.
//
//nolint:tagliatelle // Operator API uses snake_case.
type historyEntryJSON struct {
	DurationMS    float64   `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
	ID            string    `json:"id"`
	IntegrationID string    `json:"integration_id"`
	Success       bool      `json:"success"`
	Timestamp     time.Time `json:"timestamp"`
}

// MarshalJSON renders the duration in milliseconds.
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyEntryJSON{
		DurationMS:    float64(e.Duration) / float64(time.Millisecond),
		Error:         e.Error,
		ID:            e.ID,
		IntegrationID: e.IntegrationID,
		Success:       e.Success,
		Timestamp:     e.Timestamp,
	})
}

// MarshalJSON renders the average in milliseconds.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		AverageSyncTime: float64(m.AverageSyncTime) / float64(time.Millisecond),
		ErrorCount:      m.ErrorCount,
		LastError:       m.LastError,
		SyncCount:       m.SyncCount,
	})
}

// ObserveStatus implements Observer.
func (f ObserverFunc) ObserveStatus(ctx context.Context, status IntegrationStatus) {
	f(ctx, status)
}
