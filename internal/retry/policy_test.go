package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fastPolicy keeps test waits short.
func fastPolicy(attempts int) Policy {
	return Policy{
		BackoffFactor: 2,
		InitialDelay:  time.Millisecond,
		MaxAttempts:   attempts,
		MaxDelay:      5 * time.Millisecond,
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want Kind
	}{
		"nil": {
			err:  nil,
			want: KindUnknown,
		},
		"plain error": {
			err:  errors.New("boom"),
			want: KindUnknown,
		},
		"tagged rate limit": {
			err:  NewError(KindRateLimited, errors.New("slow down")),
			want: KindRateLimited,
		},
		"wrapped tagged auth": {
			err:  fmt.Errorf("fetching: %w", NewError(KindAuth, errors.New("nope"))),
			want: KindAuth,
		},
		"deadline exceeded": {
			err:  fmt.Errorf("request: %w", context.DeadlineExceeded),
			want: KindTimeout,
		},
		"net op error": {
			err:  &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			want: KindNetwork,
		},
		"dns error": {
			err:  &net.DNSError{Err: "no such host", Name: "example.invalid"},
			want: KindNetwork,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestKind_Retryable(t *testing.T) {
	t.Parallel()

	retryable := []Kind{KindNetwork, KindTimeout, KindRateLimited, KindServer}
	fatal := []Kind{KindUnknown, KindAuth, KindValidation}

	for _, k := range retryable {
		require.True(t, k.Retryable(), k.String())
	}
	for _, k := range fatal {
		require.False(t, k.Retryable(), k.String())
	}
}

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := Policy{
		BackoffFactor: 2,
		InitialDelay:  100 * time.Millisecond,
		Jitter:        0.1,
		MaxAttempts:   10,
		MaxDelay:      time.Second,
	}

	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Delay(attempt)
		require.LessOrEqual(t, d, time.Second, "attempt %d", attempt)
	}

	noJitter := p
	noJitter.Jitter = 0
	require.Equal(t, 100*time.Millisecond, noJitter.Delay(1))
	require.Equal(t, 200*time.Millisecond, noJitter.Delay(2))
	require.Equal(t, 400*time.Millisecond, noJitter.Delay(3))
	require.Equal(t, time.Second, noJitter.Delay(8))

	withJitter := p.Delay(1)
	require.GreaterOrEqual(t, withJitter, 100*time.Millisecond)
	require.LessOrEqual(t, withJitter, 110*time.Millisecond)
}

func TestDo(t *testing.T) {
	t.Parallel()

	t.Run("fatal error invokes once", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, err := Do(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
			calls++
			return 0, NewError(KindValidation, errors.New("bad request"))
		})

		require.Error(t, err)
		require.Equal(t, 1, calls)
		var exhausted *ExhaustedError
		require.False(t, errors.As(err, &exhausted))
	})

	t.Run("retryable error invokes max attempts", func(t *testing.T) {
		t.Parallel()

		var delays []time.Duration
		p := fastPolicy(4)
		p.OnRetry = func(_ int, d time.Duration, _ error) {
			delays = append(delays, d)
		}

		calls := 0
		_, err := Do(context.Background(), p, func(context.Context) (int, error) {
			calls++
			return 0, NewError(KindServer, errors.New("unavailable"))
		})

		require.Equal(t, 4, calls)
		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		require.Equal(t, 4, exhausted.Attempts)
		require.Equal(t, KindServer, Classify(exhausted.Last))
		require.Len(t, delays, 3)
		for _, d := range delays {
			require.LessOrEqual(t, d, p.MaxDelay)
		}
	})

	t.Run("succeeds after transient failure", func(t *testing.T) {
		t.Parallel()

		calls := 0
		got, err := Do(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", NewError(KindNetwork, errors.New("reset"))
			}
			return "ok", nil
		})

		require.NoError(t, err)
		require.Equal(t, "ok", got)
		require.Equal(t, 2, calls)
	})

	t.Run("attempt timeout counts as retryable", func(t *testing.T) {
		t.Parallel()

		p := fastPolicy(2)
		p.AttemptTimeout = 10 * time.Millisecond

		calls := 0
		_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
			calls++
			<-ctx.Done()
			return 0, ctx.Err()
		})

		require.Equal(t, 2, calls)
		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		require.Equal(t, KindTimeout, Classify(exhausted.Last))
	})

	t.Run("retry after overrides computed delay", func(t *testing.T) {
		t.Parallel()

		p := fastPolicy(2)
		p.MaxDelay = time.Hour
		var delay time.Duration
		p.OnRetry = func(_ int, d time.Duration, _ error) { delay = d }

		calls := 0
		_, _ = Do(context.Background(), p, func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, &Error{Kind: KindRateLimited, Err: errors.New("429"), RetryAfter: 20 * time.Millisecond}
			}
			return 1, nil
		})

		require.Equal(t, 20*time.Millisecond, delay)
	})

	t.Run("cancelled parent stops retries", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		p := fastPolicy(10)
		p.InitialDelay = time.Hour
		p.MaxDelay = time.Hour
		p.OnRetry = func(int, time.Duration, error) { cancel() }

		calls := 0
		_, err := Do(ctx, p, func(context.Context) (int, error) {
			calls++
			return 0, NewError(KindServer, errors.New("503"))
		})

		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	})
}
