package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
)

// mockHTTPServer implements HTTPServer for testing.
type mockHTTPServer struct {
	listenErr error
	shutdowns atomic.Int32
	started   chan struct{}
	stopCh    chan struct{}
}

// newMockHTTPServer returns a server that blocks until shut down.
func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

// ListenAndServe blocks until Shutdown unless listenErr is set.
func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

// Shutdown unblocks ListenAndServe.
func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	close(m.stopCh)
	return nil
}

// mockStatusChecker implements StatusChecker for testing.
type mockStatusChecker struct {
	failFor string
	mu      sync.Mutex
	started []string
	stopped atomic.Int32
}

// StartStatusChecks records the integration.
func (m *mockStatusChecker) StartStatusChecks(_ context.Context, id string, _ time.Duration) error {
	if id == m.failFor {
		return errors.New("integration not registered")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, id)
	return nil
}

// StopAll counts stops.
func (m *mockStatusChecker) StopAll() {
	m.stopped.Add(1)
}

func TestHTTPService_Serve(t *testing.T) {
	t.Parallel()

	t.Run("graceful shutdown", func(t *testing.T) {
		t.Parallel()

		server := newMockHTTPServer()
		svc := NewHTTPService(server, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		<-server.started
		cancel()

		require.ErrorIs(t, <-done, context.Canceled)
		require.Equal(t, int32(1), server.shutdowns.Load())
	})

	t.Run("listen failure", func(t *testing.T) {
		t.Parallel()

		server := newMockHTTPServer()
		server.listenErr = errors.New("address already in use")

		err := NewHTTPService(server, 0).Serve(context.Background())

		require.ErrorContains(t, err, "http server failed: address already in use")
	})

	require.Equal(t, "http-server", NewHTTPService(newMockHTTPServer(), 0).String())
}

func TestStatusCheckService_Serve(t *testing.T) {
	t.Parallel()

	t.Run("starts every integration and stops on cancel", func(t *testing.T) {
		t.Parallel()

		checker := &mockStatusChecker{}
		svc := NewStatusCheckService(checker, []string{"a", "b"}, time.Minute, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.ErrorIs(t, svc.Serve(ctx), context.Canceled)
		require.Equal(t, []string{"a", "b"}, checker.started)
		require.Equal(t, int32(1), checker.stopped.Load())
	})

	t.Run("start failure stops started checks", func(t *testing.T) {
		t.Parallel()

		checker := &mockStatusChecker{failFor: "b"}
		svc := NewStatusCheckService(checker, []string{"a", "b"}, time.Minute, nil)

		require.ErrorContains(t, svc.Serve(context.Background()), "starting status checks for b")
		require.Equal(t, int32(1), checker.stopped.Load())
	})
}

func TestTree_Serve(t *testing.T) {
	t.Parallel()

	tree := NewTree(nil, TreeConfig{ShutdownTimeout: time.Second})

	server := newMockHTTPServer()
	checker := &mockStatusChecker{}

	tree.AddAPIService(NewHTTPService(server, time.Second))
	tree.AddWorkService(NewStatusCheckService(checker, []string{"a"}, time.Minute, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	<-server.started
	require.Eventually(t, func() bool {
		checker.mu.Lock()
		defer checker.mu.Unlock()
		return len(checker.started) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.True(t, err == nil || errors.Is(err, context.Canceled) || errors.Is(err, suture.ErrTerminateSupervisorTree))
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}
	require.Equal(t, int32(1), server.shutdowns.Load())
	require.Equal(t, int32(1), checker.stopped.Load())
}
