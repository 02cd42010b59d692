package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/peteski22/churchbridge/internal/metrics"
	"github.com/peteski22/churchbridge/internal/monitor"
)

// DefaultHistoryLimit is the number of alerts kept in memory.
const DefaultHistoryLimit = 1000

// Config holds the configuration for creating an Engine.
type Config struct {
	// Channels receive every raised alert.
	Channels []Channel

	// Cooldown suppresses a repeat of the same alert type for the same integration
	// inside the window. Zero disables suppression.
	Cooldown time.Duration

	// ErrorThreshold raises an error alert when an integration's error count exceeds it.
	ErrorThreshold int

	// HistoryLimit bounds the alerts kept in memory. Zero uses DefaultHistoryLimit.
	HistoryLimit int

	// Logger is the structured logger for the engine.
	Logger *slog.Logger

	// Recorder persists raised alerts. Failures are logged and ignored.
	Recorder Recorder

	// SyncTimeThreshold raises a performance alert when the average sync time exceeds it.
	// Zero disables the rule.
	SyncTimeThreshold time.Duration
}

// validate checks the Config values.
func (c *Config) validate() error {
	var errs []error
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("cooldown cannot be negative, got %s", c.Cooldown))
	}
	if c.ErrorThreshold < 0 {
		errs = append(errs, fmt.Errorf("error threshold cannot be negative, got %d", c.ErrorThreshold))
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("history limit cannot be negative, got %d", c.HistoryLimit))
	}
	if c.SyncTimeThreshold < 0 {
		errs = append(errs, fmt.Errorf("sync time threshold cannot be negative, got %s", c.SyncTimeThreshold))
	}
	for i, ch := range c.Channels {
		if ch == nil {
			errs = append(errs, fmt.Errorf("channel %d is nil", i))
		}
	}
	return errors.Join(errs...)
}

// Engine evaluates integration status against thresholds and dispatches alerts.
type Engine struct {
	channels          []Channel
	cooldown          time.Duration
	errorThreshold    int
	history           []Alert
	historyLimit      int
	logger            *slog.Logger
	mu                sync.RWMutex
	now               func() time.Time
	recent            *cache.Cache
	recorder          Recorder
	syncTimeThreshold time.Duration
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := cfg.HistoryLimit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	e := &Engine{
		channels:          slices.Clone(cfg.Channels),
		cooldown:          cfg.Cooldown,
		errorThreshold:    cfg.ErrorThreshold,
		historyLimit:      limit,
		logger:            logger,
		now:               time.Now,
		recorder:          cfg.Recorder,
		syncTimeThreshold: cfg.SyncTimeThreshold,
	}

	if cfg.Cooldown > 0 {
		e.recent = cache.New(cfg.Cooldown, 2*cfg.Cooldown)
	}

	return e, nil
}

// CheckIntegrationStatus evaluates every rule against the status and dispatches one alert
// per triggered rule. It returns the alerts raised, which may be empty.
func (e *Engine) CheckIntegrationStatus(ctx context.Context, status monitor.IntegrationStatus) []Alert {
	now := e.now()

	var raised []Alert
	for _, a := range e.evaluate(status, now) {
		if e.suppressed(a) {
			e.logger.Debug("alert suppressed by cooldown",
				"integration_id", a.IntegrationID,
				"alert_type", a.Type)
			continue
		}

		e.store(a)
		metrics.Alerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()

		e.logger.Warn("alert raised",
			"alert_id", a.ID,
			"integration_id", a.IntegrationID,
			"alert_type", a.Type,
			"severity", a.Severity,
			"message", a.Message)

		if e.recorder != nil {
			if err := e.recorder.RecordAlert(ctx, a); err != nil {
				e.logger.Error("failed to record alert", "alert_id", a.ID, "error", err)
			}
		}

		e.dispatch(ctx, a)
		raised = append(raised, a)
	}

	return raised
}

// ClearAlerts removes the alerts of one integration, or every alert when integrationID
// is empty, and resets the matching cooldowns. It returns the number removed.
func (e *Engine) ClearAlerts(integrationID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := len(e.history)

	if integrationID == "" {
		e.history = nil
		if e.recent != nil {
			e.recent.Flush()
		}
		return before
	}

	e.history = slices.DeleteFunc(e.history, func(a Alert) bool {
		return a.IntegrationID == integrationID
	})
	if e.recent != nil {
		for _, t := range []Type{TypeError, TypePerformance, TypeStatus} {
			e.recent.Delete(cooldownKey(integrationID, t))
		}
	}

	return before - len(e.history)
}

// Evaluate checks every status in turn and returns all alerts raised.
func (e *Engine) Evaluate(ctx context.Context, statuses []monitor.IntegrationStatus) []Alert {
	var raised []Alert
	for _, status := range statuses {
		raised = append(raised, e.CheckIntegrationStatus(ctx, status)...)
	}
	return raised
}

// GetAlerts returns the alerts matching the filter, oldest first.
func (e *Engine) GetAlerts(filter Filter) []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Alert
	for _, a := range e.history {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// ObserveStatus implements monitor.Observer.
func (e *Engine) ObserveStatus(ctx context.Context, status monitor.IntegrationStatus) {
	e.CheckIntegrationStatus(ctx, status)
}

// dispatch sends the alert to every channel concurrently. A failing channel is logged
// and never affects delivery to the others.
func (e *Engine) dispatch(ctx context.Context, a Alert) {
	var wg sync.WaitGroup
	for _, ch := range e.channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.send(ctx, ch, a)
		}()
	}
	wg.Wait()
}

// evaluate applies the rules to one status.
func (e *Engine) evaluate(status monitor.IntegrationStatus, now time.Time) []Alert {
	var alerts []Alert

	if status.Metrics.ErrorCount > e.errorThreshold {
		alerts = append(alerts, newAlert(status.IntegrationID, TypeError, SeverityHigh, now,
			fmt.Sprintf("integration %s has %d sync errors (threshold %d)",
				status.IntegrationID, status.Metrics.ErrorCount, e.errorThreshold),
			map[string]any{
				"error_count": status.Metrics.ErrorCount,
				"last_error":  status.Metrics.LastError,
				"threshold":   e.errorThreshold,
			}))
	}

	if e.syncTimeThreshold > 0 && status.Metrics.AverageSyncTime > e.syncTimeThreshold {
		alerts = append(alerts, newAlert(status.IntegrationID, TypePerformance, SeverityMedium, now,
			fmt.Sprintf("integration %s average sync time %s exceeds %s",
				status.IntegrationID, status.Metrics.AverageSyncTime.Round(time.Millisecond), e.syncTimeThreshold),
			map[string]any{
				"average_sync_time_ms": status.Metrics.AverageSyncTime.Milliseconds(),
				"threshold_ms":         e.syncTimeThreshold.Milliseconds(),
			}))
	}

	if status.Status == monitor.StateError {
		alerts = append(alerts, newAlert(status.IntegrationID, TypeStatus, SeverityHigh, now,
			fmt.Sprintf("integration %s is in error state: %s", status.IntegrationID, status.Error),
			map[string]any{
				"error":    status.Error,
				"provider": string(status.Provider),
			}))
	}

	return alerts
}

// send delivers to one channel and records the outcome.
func (e *Engine) send(ctx context.Context, ch Channel, a Alert) {
	err := ch.Send(ctx, a)
	metrics.RecordNotification(ch.Name(), err)

	if err != nil {
		e.logger.Error("failed to deliver alert",
			"channel", ch.Name(),
			"alert_id", a.ID,
			"integration_id", a.IntegrationID,
			"error", err)
		return
	}

	e.logger.Debug("alert delivered", "channel", ch.Name(), "alert_id", a.ID)
}

// store appends to history, dropping the oldest alerts beyond the limit.
func (e *Engine) store(a Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, a)
	if excess := len(e.history) - e.historyLimit; excess > 0 {
		e.history = slices.Delete(e.history, 0, excess)
	}
}

// suppressed reports whether an identical alert was raised inside the cooldown window,
// claiming the window when it was not.
func (e *Engine) suppressed(a Alert) bool {
	if e.recent == nil {
		return false
	}
	return e.recent.Add(cooldownKey(a.IntegrationID, a.Type), a.ID, cache.DefaultExpiration) != nil
}

// cooldownKey identifies an (integration, type) pair in the cooldown cache.
func cooldownKey(integrationID string, t Type) string {
	return integrationID + "|" + string(t)
}

// newAlert builds an alert with an ID unique to the integration, type and time.
func newAlert(integrationID string, t Type, s Severity, now time.Time, msg string, meta map[string]any) Alert {
	return Alert{
		ID:            fmt.Sprintf("%s-%s-%d", integrationID, t, now.UnixNano()),
		IntegrationID: integrationID,
		Message:       msg,
		Metadata:      meta,
		Severity:      s,
		Timestamp:     now,
		Type:          t,
	}
}
