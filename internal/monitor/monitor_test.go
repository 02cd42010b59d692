package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/peteski22/churchbridge/internal/church"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Advance moves the clock forward.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Now returns the current fake time.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// mockChecker implements church.StatusChecker for testing.
type mockChecker struct {
	calls atomic.Int32
	err   atomic.Pointer[error]
}

// CheckStatus returns the configured error.
func (m *mockChecker) CheckStatus(context.Context) error {
	m.calls.Add(1)
	if p := m.err.Load(); p != nil {
		return *p
	}
	return nil
}

// fail makes subsequent checks return err; nil restores health.
func (m *mockChecker) fail(err error) {
	if err == nil {
		m.err.Store(nil)
		return
	}
	m.err.Store(&err)
}

// mockRecorder implements HistoryRecorder for testing.
type mockRecorder struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

// RecordSync stores the entry.
func (m *mockRecorder) RecordSync(_ context.Context, entry HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// newTestMonitor creates a monitor with a fake clock and integration "a" registered.
func newTestMonitor(t *testing.T, cfg Config, checker church.StatusChecker) (*Monitor, *fakeClock) {
	t.Helper()

	m, err := New(cfg)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	m.now = clock.Now

	require.NoError(t, m.RegisterIntegration("a", church.ProviderCCB, checker))
	return m, clock
}

// syncTaking returns a sync function that advances clock by d and returns err.
func syncTaking(clock *fakeClock, d time.Duration, err error) func(context.Context) error {
	return func(context.Context) error {
		clock.Advance(d)
		return err
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(Config{HistoryLimit: -1})
	require.ErrorContains(t, err, "history limit cannot be negative")

	m, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultHistoryLimit, m.historyLimit)
}

func TestMonitor_RegisterIntegration(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Config{}, nil)

	status, err := m.Status("a")
	require.NoError(t, err)
	require.Equal(t, StateInactive, status.Status)
	require.Equal(t, church.ProviderCCB, status.Provider)
	require.Zero(t, status.Metrics)
	require.Nil(t, status.LastSync)

	require.ErrorIs(t, m.RegisterIntegration("a", church.ProviderCCB, nil), ErrAlreadyRegistered)
	require.Error(t, m.RegisterIntegration(" ", church.ProviderCCB, nil))

	_, err = m.Status("missing")
	require.ErrorIs(t, err, ErrNotRegistered)
	require.ErrorIs(t, m.MonitorSync(context.Background(), "missing", syncTaking(&fakeClock{}, 0, nil)), ErrNotRegistered)
}

func TestMonitor_MonitorSync_AverageSyncTime(t *testing.T) {
	t.Parallel()

	m, clock := newTestMonitor(t, Config{}, nil)
	ctx := context.Background()

	require.NoError(t, m.MonitorSync(ctx, "a", syncTaking(clock, 4*time.Second, nil)))

	status, err := m.Status("a")
	require.NoError(t, err)
	require.Equal(t, StateActive, status.Status)
	require.Equal(t, 1, status.Metrics.SyncCount)
	require.Equal(t, 4*time.Second, status.Metrics.AverageSyncTime)
	require.Equal(t, clock.Now(), *status.LastSync)

	require.NoError(t, m.MonitorSync(ctx, "a", syncTaking(clock, 10*time.Second, nil)))

	status, err = m.Status("a")
	require.NoError(t, err)
	require.Equal(t, 2, status.Metrics.SyncCount)
	require.Equal(t, 7*time.Second, status.Metrics.AverageSyncTime)
}

func TestMonitor_MonitorSync_Failure(t *testing.T) {
	t.Parallel()

	recorder := &mockRecorder{}
	var observed []IntegrationStatus
	observer := ObserverFunc(func(_ context.Context, s IntegrationStatus) {
		observed = append(observed, s)
	})
	m, clock := newTestMonitor(t, Config{Observers: []Observer{observer}, Recorder: recorder}, nil)
	ctx := context.Background()

	syncErr := errors.New("provider unavailable")
	err := m.MonitorSync(ctx, "a", syncTaking(clock, time.Second, syncErr))

	require.ErrorIs(t, err, syncErr, "failure must be returned to the caller")

	status, err := m.Status("a")
	require.NoError(t, err)
	require.Equal(t, StateError, status.Status)
	require.Equal(t, "provider unavailable", status.Error)
	require.Equal(t, 1, status.Metrics.ErrorCount)
	require.Equal(t, "provider unavailable", status.Metrics.LastError)
	require.Equal(t, 0, status.Metrics.SyncCount)

	// A later success returns the integration to active but keeps the error count.
	require.NoError(t, m.MonitorSync(ctx, "a", syncTaking(clock, 2*time.Second, nil)))

	status, err = m.Status("a")
	require.NoError(t, err)
	require.Equal(t, StateActive, status.Status)
	require.Empty(t, status.Error)
	require.Equal(t, 1, status.Metrics.ErrorCount)
	require.Equal(t, 2*time.Second, status.Metrics.AverageSyncTime)

	require.Len(t, observed, 2)
	require.Equal(t, StateError, observed[0].Status)
	require.Equal(t, StateActive, observed[1].Status)

	require.Len(t, recorder.entries, 2)
	require.False(t, recorder.entries[0].Success)
	require.Equal(t, "provider unavailable", recorder.entries[0].Error)
	require.True(t, recorder.entries[1].Success)
}

func TestMonitor_Restore(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	// Newest first, as the persistent history is read back.
	stored := []HistoryEntry{
		{ID: "4", IntegrationID: "a", Error: "timeout", Timestamp: base.Add(3 * time.Hour), Duration: time.Second},
		{ID: "3", IntegrationID: "a", Success: true, Timestamp: base.Add(2 * time.Hour), Duration: 6 * time.Second},
		{ID: "2", IntegrationID: "a", Error: "unauthorized", Timestamp: base.Add(time.Hour), Duration: time.Second},
		{ID: "1", IntegrationID: "a", Success: true, Timestamp: base, Duration: 2 * time.Second},
	}

	t.Run("rebuilds metrics and state", func(t *testing.T) {
		t.Parallel()

		var observed int
		observer := ObserverFunc(func(context.Context, IntegrationStatus) { observed++ })
		m, _ := newTestMonitor(t, Config{HistoryLimit: 3, Observers: []Observer{observer}}, nil)

		require.NoError(t, m.Restore("a", stored))

		status, err := m.Status("a")
		require.NoError(t, err)
		require.Equal(t, StateError, status.Status)
		require.Equal(t, "timeout", status.Error)
		require.Equal(t, 2, status.Metrics.ErrorCount)
		require.Equal(t, 2, status.Metrics.SyncCount)
		require.Equal(t, 4*time.Second, status.Metrics.AverageSyncTime)
		require.Equal(t, base.Add(2*time.Hour+6*time.Second), *status.LastSync)
		require.Zero(t, observed)

		history, err := m.GetSyncHistory("a", 0)
		require.NoError(t, err)
		require.Len(t, history, 3)
		require.Equal(t, "4", history[0].ID)
		require.Equal(t, "2", history[2].ID)
	})

	t.Run("later syncs continue from restored metrics", func(t *testing.T) {
		t.Parallel()

		m, clock := newTestMonitor(t, Config{}, nil)
		require.NoError(t, m.Restore("a", stored))

		err := m.MonitorSync(context.Background(), "a", syncTaking(clock, time.Second, errors.New("boom")))
		require.Error(t, err)

		status, err := m.Status("a")
		require.NoError(t, err)
		require.Equal(t, 3, status.Metrics.ErrorCount)
	})

	t.Run("empty history leaves the integration inactive", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMonitor(t, Config{}, nil)
		require.NoError(t, m.Restore("a", nil))

		status, err := m.Status("a")
		require.NoError(t, err)
		require.Equal(t, StateInactive, status.Status)
		require.Zero(t, status.Metrics)
	})

	t.Run("unknown integration", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMonitor(t, Config{}, nil)
		require.ErrorIs(t, m.Restore("missing", stored), ErrNotRegistered)
	})
}

func TestMonitor_GetSyncHistory(t *testing.T) {
	t.Parallel()

	m, clock := newTestMonitor(t, Config{HistoryLimit: 3}, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_ = m.MonitorSync(ctx, "a", syncTaking(clock, time.Duration(i)*time.Second, nil))
	}

	all, err := m.GetSyncHistory("a", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 5*time.Second, all[0].Duration, "newest first")
	require.Equal(t, 3*time.Second, all[2].Duration)

	recent, err := m.GetSyncHistory("a", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, 4*time.Second, recent[1].Duration)

	_, err = m.GetSyncHistory("missing", 1)
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestMonitor_CheckIntegrationStatus(t *testing.T) {
	t.Parallel()

	t.Run("probe failure and recovery", func(t *testing.T) {
		t.Parallel()

		checker := &mockChecker{}
		m, clock := newTestMonitor(t, Config{}, checker)
		ctx := context.Background()

		require.NoError(t, m.MonitorSync(ctx, "a", syncTaking(clock, time.Second, nil)))

		checker.fail(errors.New("503 service unavailable"))
		status, err := m.CheckIntegrationStatus(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, StateError, status.Status)
		require.Contains(t, status.Error, "503")

		checker.fail(nil)
		status, err = m.CheckIntegrationStatus(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, StateActive, status.Status)
		require.Empty(t, status.Error)
	})

	t.Run("successful probe keeps a sync error", func(t *testing.T) {
		t.Parallel()

		checker := &mockChecker{}
		m, clock := newTestMonitor(t, Config{}, checker)
		ctx := context.Background()

		_ = m.MonitorSync(ctx, "a", syncTaking(clock, time.Second, errors.New("expired scope")))

		status, err := m.CheckIntegrationStatus(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, StateError, status.Status)
		require.Equal(t, "expired scope", status.Error)
	})

	t.Run("no status endpoint", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMonitor(t, Config{}, nil)

		status, err := m.CheckIntegrationStatus(context.Background(), "a")
		require.NoError(t, err)
		require.Equal(t, StateInactive, status.Status)
	})
}

func TestMonitor_StatusChecks(t *testing.T) {
	t.Parallel()

	checker := &mockChecker{}
	m, _ := newTestMonitor(t, Config{}, checker)

	require.Error(t, m.StartStatusChecks(context.Background(), "a", 0))
	require.NoError(t, m.StartStatusChecks(context.Background(), "a", 5*time.Millisecond))

	require.Eventually(t, func() bool { return checker.calls.Load() >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, m.StopStatusChecks("a"))
	require.NoError(t, m.StopStatusChecks("a"), "stopping twice is safe")

	stopped := checker.calls.Load()
	time.Sleep(25 * time.Millisecond)
	require.Equal(t, stopped, checker.calls.Load(), "no checks after stop")

	// Restarting replaces the loop; StopAll stops it.
	require.NoError(t, m.StartStatusChecks(context.Background(), "a", 5*time.Millisecond))
	require.NoError(t, m.StartStatusChecks(context.Background(), "a", 5*time.Millisecond))
	m.StopAll()
	m.StopAll()

	require.ErrorIs(t, m.StopStatusChecks("missing"), ErrNotRegistered)
}

func TestMonitor_Statuses(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, Config{}, nil)
	require.NoError(t, m.RegisterIntegration("0-first", church.ProviderBreeze, nil))

	statuses := m.Statuses()

	require.Len(t, statuses, 2)
	require.Equal(t, "0-first", statuses[0].IntegrationID)
	require.Equal(t, "a", statuses[1].IntegrationID)
}

func TestIntegrationStatus_JSON(t *testing.T) {
	t.Parallel()

	m, clock := newTestMonitor(t, Config{}, nil)
	require.NoError(t, m.MonitorSync(context.Background(), "a", syncTaking(clock, 1500*time.Millisecond, nil)))

	status, err := m.Status("a")
	require.NoError(t, err)

	data, err := json.Marshal(status)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "active", decoded["status"])
	require.Equal(t, "ccb", decoded["provider"])

	metricsJSON := decoded["metrics"].(map[string]any)
	require.InDelta(t, 1500, metricsJSON["average_sync_time_ms"], 0.001)
	require.InDelta(t, 1, metricsJSON["sync_count"], 0)

	history, err := m.GetSyncHistory("a", 1)
	require.NoError(t, err)
	data, err = json.Marshal(history[0])
	require.NoError(t, err)
	require.Contains(t, string(data), `"duration_ms":1500`)
	require.Contains(t, string(data), `"success":true`)
}
