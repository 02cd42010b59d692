package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/peteski22/churchbridge/internal/ratelimit"
	"github.com/peteski22/churchbridge/internal/retry"
)

// Option configures optional Client settings.
type Option func(*options) error

// options holds optional configuration for creating a Client.
type options struct {
	// baseURL is the base URL for API requests.
	baseURL string

	// breakerFailures is the number of consecutive failures that opens the circuit. Zero disables the breaker.
	breakerFailures uint32

	// breakerOpenFor is how long the circuit stays open before probing again.
	breakerOpenFor time.Duration

	// httpClient is a custom HTTP client.
	httpClient *http.Client

	// limiter is a caller-supplied rate limiter.
	limiter *ratelimit.Limiter

	// logger receives request and retry logs.
	logger *slog.Logger

	// policy is the retry policy applied to every request.
	policy retry.Policy

	// rateMax is the number of requests admitted per rateWindow.
	rateMax int

	// rateWindow is the rate limit window.
	rateWindow time.Duration

	// timeout is the HTTP client timeout.
	timeout time.Duration

	// userAgent is sent with every request.
	userAgent string
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(o *options) error {
		baseURL = strings.TrimSpace(baseURL)
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		o.baseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithBreaker opens the circuit after failures consecutive provider failures and keeps
// it open for openFor. A zero failures value disables the breaker.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(o *options) error {
		if failures > 0 && openFor <= 0 {
			return fmt.Errorf("breaker open duration must be positive, got %v", openFor)
		}
		o.breakerFailures = failures
		o.breakerOpenFor = openFor
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client. Overrides WithTimeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) error {
		if httpClient == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		o.httpClient = httpClient
		return nil
	}
}

// WithLimiter uses an existing limiter. Overrides WithRateLimit.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(o *options) error {
		if limiter == nil {
			return fmt.Errorf("limiter cannot be nil")
		}
		o.limiter = limiter
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithRateLimit admits at most maxRequests requests per window.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(o *options) error {
		if maxRequests <= 0 {
			return fmt.Errorf("max requests must be positive, got %d", maxRequests)
		}
		if window <= 0 {
			return fmt.Errorf("rate window must be positive, got %v", window)
		}
		o.rateMax = maxRequests
		o.rateWindow = window
		return nil
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(o *options) error {
		if policy.MaxAttempts < 0 {
			return fmt.Errorf("max attempts cannot be negative, got %d", policy.MaxAttempts)
		}
		o.policy = policy
		return nil
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		o.timeout = timeout
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(o *options) error {
		o.userAgent = strings.TrimSpace(userAgent)
		return nil
	}
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *options {
	return &options{
		breakerFailures: 5,
		breakerOpenFor:  time.Minute,
		policy:          retry.DefaultPolicy(),
		rateMax:         60,
		rateWindow:      time.Minute,
		timeout:         30 * time.Second,
		userAgent:       "churchbridge",
	}
}
