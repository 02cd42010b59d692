// Package alert turns integration health snapshots into alerts and delivers them
// to notification channels.
package alert

import (
	"context"
	"errors"
	"time"
)

const (
	// SeverityHigh needs immediate attention.
	SeverityHigh Severity = "high"

	// SeverityLow is informational.
	SeverityLow Severity = "low"

	// SeverityMedium indicates degradation.
	SeverityMedium Severity = "medium"
)

const (
	// TypeError is raised when an integration's error count crosses the threshold.
	TypeError Type = "error"

	// TypePerformance is raised when the average sync time crosses the threshold.
	TypePerformance Type = "performance"

	// TypeStatus is raised when an integration is in the error state.
	TypeStatus Type = "status"
)

// ErrThrottled is returned by a channel that dropped an alert to honor its send rate.
var ErrThrottled = errors.New("notification throttled")

// Alert is a timestamped signal that a monitored threshold was crossed.
//
//nolint:tagliatelle // Alert payloads use snake_case.
type Alert struct {
	// ID uniquely identifies the alert.
	ID string `json:"id"`

	// IntegrationID is the integration the alert concerns.
	IntegrationID string `json:"integration_id"`

	// Message is a human-readable summary.
	Message string `json:"message"`

	// Metadata carries the values that triggered the alert.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Severity is the alert severity.
	Severity Severity `json:"severity"`

	// Timestamp is when the alert was raised.
	Timestamp time.Time `json:"timestamp"`

	// Type is the rule that raised the alert.
	Type Type `json:"type"`
}

// Channel delivers alerts to one destination.
type Channel interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// Send delivers one alert.
	Send(ctx context.Context, alert Alert) error
}

// Filter selects alerts from history. Zero fields match everything.
type Filter struct {
	// IntegrationID restricts results to one integration.
	IntegrationID string

	// Severity restricts results to one severity.
	Severity Severity

	// Since excludes alerts raised before this time.
	Since time.Time

	// Type restricts results to one alert type.
	Type Type

	// Until excludes alerts raised after this time.
	Until time.Time
}

// Recorder persists alerts outside the process.
type Recorder interface {
	// RecordAlert stores one alert.
	RecordAlert(ctx context.Context, alert Alert) error
}

// Severity is an alert severity.
type Severity string

// Type is the kind of rule that raised an alert.
type Type string

// Matches reports whether the alert passes the filter.
func (f Filter) Matches(a Alert) bool {
	switch {
	case f.IntegrationID != "" && a.IntegrationID != f.IntegrationID:
		return false
	case f.Severity != "" && a.Severity != f.Severity:
		return false
	case f.Type != "" && a.Type != f.Type:
		return false
	case !f.Since.IsZero() && a.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && a.Timestamp.After(f.Until):
		return false
	}
	return true
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityLow, SeverityMedium:
		return true
	}
	return false
}

// Valid reports whether t is a known alert type.
func (t Type) Valid() bool {
	switch t {
	case TypeError, TypePerformance, TypeStatus:
		return true
	}
	return false
}
