package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/metrics"
)

// DefaultHistoryLimit is the number of history entries kept per integration.
const DefaultHistoryLimit = 100

// Config holds optional configuration for creating a Monitor.
type Config struct {
	// HistoryLimit bounds the entries kept per integration. Zero uses DefaultHistoryLimit.
	HistoryLimit int

	// Logger is the structured logger for the monitor.
	Logger *slog.Logger

	// Observers are notified after every status change, in order.
	Observers []Observer

	// Recorder persists history entries. Failures are logged and ignored.
	Recorder HistoryRecorder
}

// Monitor tracks integration health. Each integration's record has its own lock, so
// syncs of unrelated integrations never serialize on the monitor.
type Monitor struct {
	historyLimit int
	logger       *slog.Logger
	mu           sync.RWMutex
	now          func() time.Time
	observers    []Observer
	records      map[string]*record
	recorder     HistoryRecorder
}

// record is the mutable state of one integration.
type record struct {
	// checker probes the provider. Nil when the provider exposes no status endpoint.
	checker church.StatusChecker

	// checks is the running status-check loop, if any.
	checks *checkLoop

	// history holds the most recent entries, oldest first.
	history []HistoryEntry

	// mu guards every field of the record.
	mu sync.Mutex

	// probeError reports that the current error state came from a status check.
	probeError bool

	// status is the current snapshot.
	status IntegrationStatus
}

// checkLoop is one periodic status-check goroutine.
type checkLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.HistoryLimit < 0 {
		return nil, fmt.Errorf("invalid config: history limit cannot be negative, got %d", cfg.HistoryLimit)
	}

	limit := cfg.HistoryLimit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		historyLimit: limit,
		logger:       logger,
		now:          time.Now,
		observers:    slices.Clone(cfg.Observers),
		records:      map[string]*record{},
		recorder:     cfg.Recorder,
	}, nil
}

// AddObserver subscribes o to status changes.
func (m *Monitor) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, o)
}

// CheckIntegrationStatus probes the provider's status endpoint and reconciles local state.
// A failed probe moves the integration to StateError. A successful probe clears an error
// only when that error came from a probe; sync failures stay until the next successful sync.
// Integrations without a status endpoint are returned unchanged.
func (m *Monitor) CheckIntegrationStatus(ctx context.Context, integrationID string) (IntegrationStatus, error) {
	rec, err := m.record(integrationID)
	if err != nil {
		return IntegrationStatus{}, err
	}

	rec.mu.Lock()
	checker := rec.checker
	rec.mu.Unlock()

	if checker == nil {
		return m.Status(integrationID)
	}

	probeErr := checker.CheckStatus(ctx)
	if probeErr != nil && ctx.Err() != nil {
		return IntegrationStatus{}, fmt.Errorf("checking integration status: %w", ctx.Err())
	}

	rec.mu.Lock()
	before := rec.status.Status
	switch {
	case probeErr != nil:
		rec.status.Status = StateError
		rec.status.Error = fmt.Sprintf("status check failed: %v", probeErr)
		rec.probeError = true
	case rec.status.Status == StateError && rec.probeError:
		rec.status.Status = StateInactive
		if rec.status.Metrics.SyncCount > 0 {
			rec.status.Status = StateActive
		}
		rec.status.Error = ""
		rec.probeError = false
	}
	changed := before != rec.status.Status
	snapshot := rec.snapshot()
	rec.mu.Unlock()

	if probeErr != nil {
		m.logger.Warn("integration status check failed", "integration_id", integrationID, "error", probeErr)
	}

	if changed {
		m.logger.Info("integration status changed",
			"integration_id", integrationID,
			"from", before,
			"to", snapshot.Status)
		m.notify(ctx, snapshot)
	}

	return snapshot, nil
}

// GetSyncHistory returns up to limit of the most recent entries, newest first.
// A limit of zero or less returns every retained entry.
func (m *Monitor) GetSyncHistory(integrationID string, limit int) ([]HistoryEntry, error) {
	rec, err := m.record(integrationID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	n := len(rec.history)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]HistoryEntry, 0, n)
	for i := len(rec.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, rec.history[i])
	}

	return out, nil
}

// MonitorSync runs syncFn for the integration and records the outcome. On success the
// integration becomes active and the running average is updated incrementally; on failure
// it moves to StateError. The error from syncFn is returned unchanged.
func (m *Monitor) MonitorSync(ctx context.Context, integrationID string, syncFn func(ctx context.Context) error) error {
	rec, err := m.record(integrationID)
	if err != nil {
		return err
	}

	start := m.now()
	syncErr := syncFn(ctx)
	finished := m.now()
	duration := finished.Sub(start)

	entry := HistoryEntry{
		Duration:      duration,
		ID:            uuid.NewString(),
		IntegrationID: integrationID,
		Success:       syncErr == nil,
		Timestamp:     start,
	}
	if syncErr != nil {
		entry.Error = syncErr.Error()
	}

	rec.mu.Lock()
	rec.appendHistory(entry, m.historyLimit)
	if syncErr == nil {
		rec.recordSuccess(duration, finished)
	} else {
		rec.recordFailure(syncErr)
	}
	snapshot := rec.snapshot()
	rec.mu.Unlock()

	metrics.RecordSyncRun(integrationID, syncErr == nil, duration)

	if syncErr != nil {
		m.logger.Error("monitored sync failed",
			"integration_id", integrationID,
			"duration", duration,
			"error_count", snapshot.Metrics.ErrorCount,
			"error", syncErr)
	} else {
		m.logger.Info("monitored sync succeeded",
			"integration_id", integrationID,
			"duration", duration,
			"average_sync_time", snapshot.Metrics.AverageSyncTime)
	}

	if m.recorder != nil {
		if err := m.recorder.RecordSync(ctx, entry); err != nil {
			m.logger.Error("failed to record sync history", "integration_id", integrationID, "error", err)
		}
	}

	m.notify(ctx, snapshot)

	return syncErr
}

// RegisterIntegration starts tracking an integration in StateInactive with zero metrics.
// checker may be nil when the provider exposes no status endpoint.
func (m *Monitor) RegisterIntegration(integrationID string, provider church.Provider, checker church.StatusChecker) error {
	if strings.TrimSpace(integrationID) == "" {
		return errors.New("integration ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[integrationID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, integrationID)
	}

	m.records[integrationID] = &record{
		checker: checker,
		status: IntegrationStatus{
			IntegrationID: integrationID,
			Provider:      provider,
			Status:        StateInactive,
		},
	}

	m.logger.Info("integration registered", "integration_id", integrationID, "provider", provider)

	return nil
}

// Restore rebuilds an integration's history, metrics and state by replaying entries
// persisted by a previous process. Entries may be in any order; they are replayed oldest
// first and replace whatever the record already holds. Observers are not notified.
func (m *Monitor) Restore(integrationID string, entries []HistoryEntry) error {
	rec, err := m.record(integrationID)
	if err != nil {
		return err
	}

	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, func(a, b HistoryEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.history = nil
	rec.probeError = false
	rec.status = IntegrationStatus{
		IntegrationID: rec.status.IntegrationID,
		Provider:      rec.status.Provider,
		Status:        StateInactive,
	}

	for _, entry := range ordered {
		rec.appendHistory(entry, m.historyLimit)
		if entry.Success {
			rec.recordSuccess(entry.Duration, entry.Timestamp.Add(entry.Duration))
			continue
		}
		msg := entry.Error
		if msg == "" {
			msg = "sync failed"
		}
		rec.recordFailure(errors.New(msg))
	}

	m.logger.Info("integration state restored",
		"integration_id", integrationID,
		"entries", len(ordered),
		"status", rec.status.Status,
		"error_count", rec.status.Metrics.ErrorCount)

	return nil
}

// StartStatusChecks runs CheckIntegrationStatus every interval until StopStatusChecks is
// called or ctx ends. Starting again replaces the running loop.
func (m *Monitor) StartStatusChecks(ctx context.Context, integrationID string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("status check interval must be positive, got %v", interval)
	}

	rec, err := m.record(integrationID)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	loop := &checkLoop{cancel: cancel, done: make(chan struct{})}

	rec.mu.Lock()
	previous := rec.checks
	rec.checks = loop
	rec.mu.Unlock()

	if previous != nil {
		previous.stop()
	}

	go func() {
		defer close(loop.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := m.CheckIntegrationStatus(loopCtx, integrationID); err != nil && loopCtx.Err() == nil {
					m.logger.Error("status check loop stopped", "integration_id", integrationID, "error", err)
					return
				}
			}
		}
	}()

	m.logger.Debug("status checks started", "integration_id", integrationID, "interval", interval)

	return nil
}

// Status returns the current status snapshot.
func (m *Monitor) Status(integrationID string) (IntegrationStatus, error) {
	rec, err := m.record(integrationID)
	if err != nil {
		return IntegrationStatus{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.snapshot(), nil
}

// Statuses returns every integration's status, ordered by integration ID.
func (m *Monitor) Statuses() []IntegrationStatus {
	m.mu.RLock()
	records := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	out := make([]IntegrationStatus, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		out = append(out, rec.snapshot())
		rec.mu.Unlock()
	}

	slices.SortFunc(out, func(a, b IntegrationStatus) int {
		return strings.Compare(a.IntegrationID, b.IntegrationID)
	})

	return out
}

// StopAll stops every status-check loop.
func (m *Monitor) StopAll() {
	m.mu.RLock()
	records := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	for _, rec := range records {
		m.stopLoop(rec)
	}
}

// StopStatusChecks stops the integration's status-check loop and waits for it to exit.
// It is safe to call any number of times.
func (m *Monitor) StopStatusChecks(integrationID string) error {
	rec, err := m.record(integrationID)
	if err != nil {
		return err
	}

	m.stopLoop(rec)

	return nil
}

// notify delivers a snapshot to every observer.
func (m *Monitor) notify(ctx context.Context, status IntegrationStatus) {
	m.mu.RLock()
	observers := slices.Clone(m.observers)
	m.mu.RUnlock()

	for _, o := range observers {
		o.ObserveStatus(ctx, status)
	}
}

// record looks up an integration's record.
func (m *Monitor) record(integrationID string) (*record, error) {
	m.mu.RLock()
	rec, ok := m.records[integrationID]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, integrationID)
	}

	return rec, nil
}

// stopLoop cancels the record's loop, if any, and waits for it to exit.
func (m *Monitor) stopLoop(rec *record) {
	rec.mu.Lock()
	loop := rec.checks
	rec.checks = nil
	rec.mu.Unlock()

	if loop != nil {
		loop.stop()
	}
}

// stop cancels the loop and waits for it to exit.
func (l *checkLoop) stop() {
	l.cancel()
	<-l.done
}

// appendHistory adds an entry, dropping the oldest beyond limit.
func (r *record) appendHistory(entry HistoryEntry, limit int) {
	r.history = append(r.history, entry)
	if over := len(r.history) - limit; over > 0 {
		r.history = slices.Delete(r.history, 0, over)
	}
}

// recordFailure moves the record to StateError.
func (r *record) recordFailure(err error) {
	r.status.Status = StateError
	r.status.Error = err.Error()
	r.status.Metrics.ErrorCount++
	r.status.Metrics.LastError = err.Error()
	r.probeError = false
}

// recordSuccess moves the record to StateActive and folds duration into the running mean.
func (r *record) recordSuccess(duration time.Duration, finished time.Time) {
	m := &r.status.Metrics
	n := time.Duration(m.SyncCount)
	m.AverageSyncTime = (m.AverageSyncTime*n + duration) / (n + 1)
	m.SyncCount++

	r.status.Status = StateActive
	r.status.Error = ""
	r.status.LastSync = &finished
	r.probeError = false
}

// snapshot copies the status so callers never share the record's pointers.
func (r *record) snapshot() IntegrationStatus {
	s := r.status
	if s.LastSync != nil {
		t := *s.LastSync
		s.LastSync = &t
	}
	return s
}
