// Package ratelimit provides a blocking fixed-window rate limiter.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Limiter admits at most a fixed number of operations per window.
// Callers over quota wait for the next window instead of being rejected.
type Limiter struct {
	// maxRequests is the number of operations admitted per window.
	maxRequests int

	// mu guards requestCount and windowStart.
	mu sync.Mutex

	// now returns the current time.
	now func() time.Time

	// requestCount is the number of operations admitted in the current window.
	requestCount int

	// window is the window length.
	window time.Duration

	// windowStart is when the current window opened.
	windowStart time.Time
}

// State is a snapshot of a limiter's accounting.
type State struct {
	// RequestCount is the number of operations admitted in the current window.
	RequestCount int

	// WindowStart is when the current window opened.
	WindowStart time.Time
}

// New creates a limiter admitting maxRequests operations per window.
func New(maxRequests int, window time.Duration) (*Limiter, error) {
	var errs []error
	if maxRequests <= 0 {
		errs = append(errs, errors.New("max requests must be positive"))
	}
	if window <= 0 {
		errs = append(errs, errors.New("window must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Limiter{
		maxRequests: maxRequests,
		now:         time.Now,
		window:      window,
		windowStart: time.Now(),
	}, nil
}

// Wait blocks until the caller may start one operation, then counts it.
// It returns ctx.Err() if the context ends while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// State returns the current accounting.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return State{
		RequestCount: l.requestCount,
		WindowStart:  l.windowStart,
	}
}

// reserve counts one operation if the window has room. Otherwise it returns how
// long remains until the window resets.
func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.windowStart)
	if elapsed >= l.window {
		l.requestCount = 0
		l.windowStart = now
		elapsed = 0
	}

	if l.requestCount < l.maxRequests {
		l.requestCount++
		return 0, true
	}

	return l.window - elapsed, false
}

// Execute waits for a slot and then runs op.
func Execute[T any](ctx context.Context, l *Limiter, op func(ctx context.Context) (T, error)) (T, error) {
	if err := l.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return op(ctx)
}
