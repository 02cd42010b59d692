// Package sync runs synchronization passes that pull canonical records from a
// provider adapter, isolating failures per entity type.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/peteski22/churchbridge/internal/church"
)

var (
	// ErrPartialFailure is reported by Result.Failure when some entity types recorded errors.
	ErrPartialFailure = errors.New("sync completed with errors")

	// ErrUnknownProvider is returned when an integration names a provider with no adapter.
	ErrUnknownProvider = church.ErrUnknownProvider
)

// AdapterFactory builds the adapter for an integration.
type AdapterFactory interface {
	// New returns the adapter for integration.
	New(integration church.Integration) (church.Adapter, error)
}

// EntityStats counts the outcome of one entity type within a pass.
type EntityStats struct {
	// Errors counts failed fetches, undecodable records and rejected pages.
	Errors int `json:"errors"`

	// LastError is the most recent error message, if any.
	LastError string `json:"last_error,omitempty"`

	// Synced counts records handed to the sink successfully.
	Synced int `json:"synced"`
}

// IntegrationSource loads integration records.
type IntegrationSource interface {
	// Integration returns the integration with the given ID.
	Integration(ctx context.Context, id string) (church.Integration, error)
}

// Result contains the outcome of a sync pass.
type Result struct {
	// DryRun indicates the sink was not written and the sync time was not advanced.
	DryRun bool

	// Err is set when the pass was abandoned before any entity type was attempted.
	Err error

	// FinishedAt is when the pass ended.
	FinishedAt time.Time

	// IntegrationID is the integration the pass ran for.
	IntegrationID string

	// RunID uniquely identifies the pass.
	RunID string

	// Since is the modified-since cursor the pass requested.
	Since time.Time

	// Skipped lists requested entity types the integration does not enable.
	Skipped []church.EntityType

	// StartedAt is when the pass began.
	StartedAt time.Time

	// Stats holds per-entity-type counts.
	Stats Stats
}

// Stats holds the per-entity-type counts of a pass.
type Stats struct {
	// Giving counts donations.
	Giving EntityStats `json:"giving"`

	// Groups counts groups.
	Groups EntityStats `json:"groups"`

	// People counts people.
	People EntityStats `json:"people"`
}

// StateStore persists the modified-since watermark per integration.
type StateStore interface {
	// LastSyncTime returns the start time of the last clean pass, or zero if none.
	LastSyncTime(ctx context.Context, integrationID string) (time.Time, error)

	// SetLastSyncTime records the start time of a clean pass.
	SetLastSyncTime(ctx context.Context, integrationID string, t time.Time) error
}

// resultJSON is the wire shape of Result.
//
//nolint:tagliatelle // Operator API uses snake_case.
type resultJSON struct {
	DryRun        bool       `json:"dry_run"`
	Duration      float64    `json:"duration_seconds"`
	Error         *string    `json:"error"`
	IntegrationID string     `json:"integration_id"`
	RunID         string     `json:"run_id"`
	Since         *time.Time `json:"since,omitempty"`
	Stats         Stats      `json:"stats"`
}

// Duration returns how long the pass took.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Errors returns the total error count across entity types.
func (r *Result) Errors() int {
	return r.Stats.Giving.Errors + r.Stats.Groups.Errors + r.Stats.People.Errors
}

// Failure returns the pass-fatal error, or an error wrapping ErrPartialFailure when any
// entity type recorded errors, or nil for a clean pass.
func (r *Result) Failure() error {
	if r.Err != nil {
		return r.Err
	}
	if n := r.Errors(); n > 0 {
		return fmt.Errorf("%w: %d errors (people %d, groups %d, giving %d)",
			ErrPartialFailure, n, r.Stats.People.Errors, r.Stats.Groups.Errors, r.Stats.Giving.Errors)
	}
	return nil
}

// MarshalJSON renders the result with a nullable error message.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		DryRun:        r.DryRun,
		Duration:      r.Duration().Seconds(),
		IntegrationID: r.IntegrationID,
		RunID:         r.RunID,
		Stats:         r.Stats,
	}
	if !r.Since.IsZero() {
		since := r.Since
		out.Since = &since
	}
	if r.Err != nil {
		msg := r.Err.Error()
		out.Error = &msg
	}
	return json.Marshal(out)
}

// Synced returns the total synced count across entity types.
func (r *Result) Synced() int {
	return r.Stats.Giving.Synced + r.Stats.Groups.Synced + r.Stats.People.Synced
}

// For returns the counters for entity type e, or nil for an unknown type.
func (s *Stats) For(e church.EntityType) *EntityStats {
	switch e {
	case church.EntityGiving:
		return &s.Giving
	case church.EntityGroups:
		return &s.Groups
	case church.EntityPeople:
		return &s.People
	default:
		return nil
	}
}
