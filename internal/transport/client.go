// Package transport is the HTTP access layer shared by provider adapters. Every request
// runs through the retry policy, the connection's rate limiter and a circuit breaker, and
// failures are tagged with a retry.Kind at this boundary.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/metrics"
	"github.com/peteski22/churchbridge/internal/ratelimit"
	"github.com/peteski22/churchbridge/internal/retry"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 32 << 20

// Client executes provider API requests.
type Client struct {
	// attemptTimeout bounds each attempt, excluding time spent waiting on the limiter.
	attemptTimeout time.Duration

	// auth decorates requests with credentials. May be nil.
	auth Authenticator

	// baseURL is the base URL for API requests.
	baseURL string

	// breaker guards the provider connection. Nil when disabled.
	breaker *gobreaker.CircuitBreaker[*Response]

	// httpClient is the HTTP client for making requests.
	httpClient *http.Client

	// limiter bounds the request rate of this connection.
	limiter *ratelimit.Limiter

	// logger receives request and retry logs.
	logger *slog.Logger

	// policy is the retry policy, with the attempt timeout applied by Client itself.
	policy retry.Policy

	// provider labels logs and metrics.
	provider string

	// userAgent is sent with every request.
	userAgent string
}

// Request describes one API call relative to the client's base URL.
type Request struct {
	// Body is sent as the request body when non-nil.
	Body []byte

	// Header holds extra request headers.
	Header http.Header

	// Method is the HTTP method. Empty means GET.
	Method string

	// Path is appended to the base URL.
	Path string

	// Query is encoded as the query string.
	Query url.Values
}

// Response is a fully read HTTP response with a 2xx status.
type Response struct {
	// Body is the response body.
	Body []byte

	// Header holds the response headers.
	Header http.Header

	// StatusCode is the HTTP status code.
	StatusCode int
}

// BaseURL returns the base URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes req. Each attempt waits for a rate-limit slot, then runs under the
// attempt timeout and the circuit breaker. Non-2xx responses are returned as *retry.Error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	return retry.Do(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limit: %w", err)
		}
		return retry.Attempt(ctx, c.attemptTimeout, func(ctx context.Context) (*Response, error) {
			return c.attempt(ctx, req)
		})
	})
}

// GetJSON issues a GET request and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, Request{Path: path, Query: query})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Limiter returns the connection's rate limiter.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// attempt runs one request through the circuit breaker and records metrics.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	var (
		resp *Response
		err  error
	)
	if c.breaker != nil {
		resp, err = c.breaker.Execute(func() (*Response, error) {
			return c.send(ctx, req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s circuit open: %w", c.provider, err)
		}
	} else {
		resp, err = c.send(ctx, req)
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = retry.Classify(err).String()
	}
	metrics.RecordRequest(c.provider, outcome, time.Since(start))

	return resp, err
}

// send performs the HTTP round trip.
func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	reqURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}

	if c.auth != nil {
		if err := c.auth.Authenticate(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("authenticating request: %w", err)
		}
	}

	c.logger.Debug("provider request", "provider", c.provider, "method", method, "path", req.Path)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, retry.NewError(retry.KindNetwork, fmt.Errorf("reading response: %w", err))
	}

	if err := CheckStatus(httpResp.StatusCode, httpResp.Header, respBody); err != nil {
		return nil, err
	}

	return &Response{
		Body:       respBody,
		Header:     httpResp.Header,
		StatusCode: httpResp.StatusCode,
	}, nil
}

// CheckStatus maps a non-2xx status to a tagged error. 401 and 403 wrap
// church.ErrInvalidCredentials; 429 carries the Retry-After delay.
func CheckStatus(code int, header http.Header, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}

	detail := errors.New(snippet(body))

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &retry.Error{
			Err:        fmt.Errorf("%w: %v", church.ErrInvalidCredentials, detail),
			Kind:       retry.KindAuth,
			StatusCode: code,
		}
	case code == http.StatusTooManyRequests:
		return &retry.Error{
			Err:        detail,
			Kind:       retry.KindRateLimited,
			RetryAfter: parseRetryAfter(header.Get("Retry-After"), time.Now()),
			StatusCode: code,
		}
	case code >= 500:
		return &retry.Error{Err: detail, Kind: retry.KindServer, StatusCode: code}
	default:
		return &retry.Error{Err: detail, Kind: retry.KindValidation, StatusCode: code}
	}
}

// parseRetryAfter reads a Retry-After value in seconds or as an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// snippet returns a bounded excerpt of a response body for error messages.
func snippet(body []byte) string {
	const limit = 512
	if len(body) == 0 {
		return "empty response body"
	}
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// New creates a client for one provider connection.
func New(provider string, auth Authenticator, opts ...Option) (*Client, error) {
	if provider == "" {
		return nil, errors.New("provider is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	if o.baseURL == "" {
		return nil, errors.New("base URL is required")
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	limiter := o.limiter
	if limiter == nil {
		var err error
		limiter, err = ratelimit.New(o.rateMax, o.rateWindow)
		if err != nil {
			return nil, fmt.Errorf("creating rate limiter: %w", err)
		}
	}

	c := &Client{
		attemptTimeout: o.policy.AttemptTimeout,
		auth:           auth,
		baseURL:        o.baseURL,
		httpClient:     httpClient,
		limiter:        limiter,
		logger:         logger,
		provider:       provider,
		userAgent:      o.userAgent,
	}

	policy := o.policy
	policy.AttemptTimeout = 0
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		kind := retry.Classify(err)
		metrics.ProviderRetries.WithLabelValues(provider, kind.String()).Inc()
		logger.Warn("retrying provider request",
			"provider", provider,
			"attempt", attempt,
			"delay", delay,
			"kind", kind.String(),
			"error", err,
		)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}
	c.policy = policy

	if o.breakerFailures > 0 {
		c.breaker = newBreaker(provider, o.baseURL, o.breakerFailures, o.breakerOpenFor, logger)
	}

	return c, nil
}
