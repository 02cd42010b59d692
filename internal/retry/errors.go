// Package retry runs operations with classified-error retries and capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"time"
)

const (
	// KindUnknown is an unclassified error. It is fatal.
	KindUnknown Kind = iota

	// KindNetwork is a connection-level failure.
	KindNetwork

	// KindTimeout is a request or attempt that ran out of time.
	KindTimeout

	// KindRateLimited is a provider-side rate-limit response.
	KindRateLimited

	// KindServer is a 5xx-class response.
	KindServer

	// KindAuth is a 401-class response.
	KindAuth

	// KindValidation is a 4xx-class response other than rate limiting.
	KindValidation
)

// Error is an error tagged with its Kind at the point it was produced.
type Error struct {
	// Err is the underlying error.
	Err error

	// Kind classifies the error.
	Kind Kind

	// RetryAfter is the provider-requested wait, when it sent one.
	RetryAfter time.Duration

	// StatusCode is the HTTP status, when the error came from a response.
	StatusCode int
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	// Attempts is the number of attempts made.
	Attempts int

	// Last is the error from the final attempt.
	Last error
}

// Kind is the closed set of error classes the retry policy dispatches on.
type Kind int

// Error implements error.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Retryable reports whether errors of this kind may be retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Classify returns the Kind of err. Tagged errors keep their tag; well-known
// transport failures are mapped; everything else is KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return KindNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}

	return KindUnknown
}

// NewError tags err with kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Err: err, Kind: kind}
}
