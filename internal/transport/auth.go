package transport

import (
	"context"
	"fmt"
	"net/http"
)

// Authenticator decorates an outgoing request with credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, req *http.Request) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, req *http.Request) error

// TokenFunc returns a bearer token that is valid for the next request.
type TokenFunc func(ctx context.Context) (string, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

// APIKeyHeader sends key in the named header.
func APIKeyHeader(header, key string) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, req *http.Request) error {
		req.Header.Set(header, key)
		return nil
	})
}

// Basic uses HTTP Basic authentication.
func Basic(username, password string) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, req *http.Request) error {
		req.SetBasicAuth(username, password)
		return nil
	})
}

// Bearer sends a static bearer token.
func Bearer(token string) Authenticator {
	return AuthenticatorFunc(func(_ context.Context, req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// TokenSource sends a bearer token obtained from fn on every request.
func TokenSource(fn TokenFunc) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, req *http.Request) error {
		token, err := fn(ctx)
		if err != nil {
			return fmt.Errorf("getting access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}
