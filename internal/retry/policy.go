package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultAttemptTimeout = 30 * time.Second
	defaultBackoffFactor  = 2.0
	defaultInitialDelay   = time.Second
	defaultJitter         = 0.1
	defaultMaxAttempts    = 3
	defaultMaxDelay       = 30 * time.Second
)

// Policy controls how many times an operation is attempted and how long to wait in between.
type Policy struct {
	// AttemptTimeout bounds each attempt. Zero disables the per-attempt deadline.
	AttemptTimeout time.Duration

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// Jitter is the maximum random fraction added to each delay (0.1 adds up to 10%).
	Jitter float64

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// MaxDelay caps every computed delay, jitter included.
	MaxDelay time.Duration

	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the policy used when callers configure nothing.
func DefaultPolicy() Policy {
	return Policy{
		AttemptTimeout: defaultAttemptTimeout,
		BackoffFactor:  defaultBackoffFactor,
		InitialDelay:   defaultInitialDelay,
		Jitter:         defaultJitter,
		MaxAttempts:    defaultMaxAttempts,
		MaxDelay:       defaultMaxDelay,
	}
}

// Delay returns the wait before attempt+1, given that attempt (1-indexed) just failed.
// The result never exceeds MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()

	base := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if base > float64(p.MaxDelay) {
		base = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		base += base * p.Jitter * rand.Float64()
	}

	return min(time.Duration(base), p.MaxDelay)
}

// withDefaults fills zero-valued fields.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = defaultBackoffFactor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Do runs op until it succeeds, fails with a fatal error, or runs out of attempts.
// Fatal errors are returned unchanged after a single attempt. When every attempt
// fails with a retryable error an *ExhaustedError carrying the last error is returned.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p := policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := Attempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// The caller gave up; the attempt deadline did not fire.
		if ctx.Err() != nil {
			return zero, err
		}

		kind := Classify(err)
		if !kind.Retryable() {
			return zero, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)
		var tagged *Error
		if errors.As(err, &tagged) && tagged.RetryAfter > 0 {
			delay = min(tagged.RetryAfter, p.MaxDelay)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Last: lastErr}
}

// Attempt runs op once under its own deadline. A deadline hit while ctx is still
// live is reported as a KindTimeout error. A zero timeout runs op with ctx unchanged.
func Attempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := op(attemptCtx)
	if err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		var zero T
		return zero, NewError(KindTimeout, fmt.Errorf("attempt exceeded %s: %w", timeout, err))
	}
	return result, err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
