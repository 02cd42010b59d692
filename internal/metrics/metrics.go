// Package metrics defines the Prometheus collectors shared by the sync engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// OutcomeError labels a failed operation.
	OutcomeError = "error"

	// OutcomeSuccess labels a successful operation.
	OutcomeSuccess = "success"
)

var (
	// ProviderRequests counts HTTP attempts against provider APIs.
	// Labels:
	//   - provider: church.Provider value
	//   - outcome: "success" or the retry.Kind of the failure
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churchbridge_provider_requests_total",
			Help: "Total number of provider API request attempts",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderRequestDuration measures provider API latency per attempt.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "churchbridge_provider_request_duration_seconds",
			Help:    "Duration of provider API request attempts in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// ProviderRetries counts retries scheduled after a retryable failure.
	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churchbridge_provider_retries_total",
			Help: "Total number of provider request retries",
		},
		[]string{"provider", "kind"},
	)

	// BreakerState reports the circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "churchbridge_provider_breaker_state",
			Help: "Circuit breaker state per provider connection",
		},
		[]string{"provider", "name"},
	)

	// SyncRecords counts records processed by sync passes.
	// Labels:
	//   - outcome: "synced" or "errors"
	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churchbridge_sync_records_total",
			Help: "Total number of records processed by sync passes",
		},
		[]string{"provider", "entity_type", "outcome"},
	)

	// SyncRuns counts monitored sync runs per integration.
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churchbridge_sync_runs_total",
			Help: "Total number of monitored sync runs",
		},
		[]string{"integration_id", "outcome"},
	)

	// SyncDuration measures monitored sync run duration.
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "churchbridge_sync_duration_seconds",
			Help:    "Duration of monitored sync runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"integration_id"},
	)

	// Alerts counts alerts raised by the alert engine.
	Alerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churchbridge_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"type", "severity"},
	)

	// Notifications counts alert deliveries per channel.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "churchbridge_notifications_total",
			Help: "Total number of alert notification deliveries",
		},
		[]string{"channel", "outcome"},
	)
)

// RecordRequest records one provider request attempt.
func RecordRequest(provider, outcome string, duration time.Duration) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordSyncRun records one monitored sync run.
func RecordSyncRun(integrationID string, success bool, duration time.Duration) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	SyncRuns.WithLabelValues(integrationID, outcome).Inc()
	SyncDuration.WithLabelValues(integrationID).Observe(duration.Seconds())
}

// RecordEntity records the counts of one entity type in a sync pass.
func RecordEntity(provider, entityType string, synced, errs int) {
	SyncRecords.WithLabelValues(provider, entityType, "synced").Add(float64(synced))
	SyncRecords.WithLabelValues(provider, entityType, "errors").Add(float64(errs))
}

// RecordNotification records one channel delivery.
func RecordNotification(channel string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	Notifications.WithLabelValues(channel, outcome).Inc()
}
