package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/config"
	"github.com/peteski22/churchbridge/internal/planningcenter"
	"github.com/peteski22/churchbridge/internal/storage"
)

const (
	authTimeout     = 5 * time.Minute
	callbackAddr    = "localhost:8080"
	callbackPath    = "/callback"
	httpTimeout     = 30 * time.Second
	oauthScopes     = "people groups giving"
	stateByteLength = 32
)

// oauthErrorResponse represents an OAuth error from the Planning Center token endpoint.
//
//nolint:tagliatelle // External API uses snake_case.
type oauthErrorResponse struct {
	Description string `json:"error_description"`
	Error       string `json:"error"`
}

// tokenExchangeRequest contains the parameters for exchanging an authorization code.
type tokenExchangeRequest struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	TokenURL     string
}

// tokenResponse represents the OAuth token response.
//
//nolint:tagliatelle // External API uses snake_case.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func newAuthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth <integration-id>",
		Short: "Authorize a Planning Center integration and store its refresh token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := opts.loadDocument()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runAuth(cmd.Context(), cmd.OutOrStdout(), doc, args[0])
		},
	}
}

// buildAuthURL constructs the Planning Center OAuth authorization URL.
func buildAuthURL(authorizeURL string, clientID string, redirectURI string, state string) string {
	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", oauthScopes)
	params.Set("state", state)

	return authorizeURL + "?" + params.Encode()
}

// generateOAuthState generates a cryptographically secure random state for CSRF protection.
func generateOAuthState() (string, error) {
	b := make([]byte, stateByteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// buildTokenRequest constructs an HTTP request for the token exchange.
func buildTokenRequest(ctx context.Context, req tokenExchangeRequest) (*http.Request, error) {
	data := url.Values{}
	data.Set("client_id", req.ClientID)
	data.Set("client_secret", req.ClientSecret)
	data.Set("code", req.Code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", req.RedirectURI)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return httpReq, nil
}

// exchangeCode exchanges an authorization code for OAuth tokens.
func exchangeCode(ctx context.Context, req tokenExchangeRequest) (*tokenResponse, error) {
	httpReq, err := buildTokenRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errResp oauthErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%s: %s", errResp.Error, errResp.Description)
		}
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if tokens.RefreshToken == "" {
		return nil, errors.New("token response has no refresh token")
	}

	return &tokens, nil
}

// browserCommand returns the command and arguments to open a URL on the current OS.
func browserCommand(targetURL string) (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{targetURL}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", targetURL}
	default:
		return "xdg-open", []string{targetURL}
	}
}

// openBrowser opens the default web browser to the specified URL.
func openBrowser(targetURL string) error {
	name, args := browserCommand(targetURL)
	cmd := exec.Command(name, args...)
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout

	return cmd.Start()
}

// authIntegration returns the Planning Center integration to authorize.
func authIntegration(doc *config.Document, integrationID string) (church.Integration, error) {
	integration, ok := doc.Integration(integrationID)
	if !ok {
		return church.Integration{}, fmt.Errorf("integration %q is not configured", integrationID)
	}
	if integration.Provider != church.ProviderPlanningCenter {
		return church.Integration{}, fmt.Errorf(
			"integration %q uses %s, only %s integrations use OAuth",
			integrationID,
			integration.Provider,
			church.ProviderPlanningCenter,
		)
	}
	return integration, nil
}

// runAuth performs the Planning Center OAuth authorization flow for one integration.
// It starts a local server, opens the browser for user consent, and saves the refresh token.
func runAuth(ctx context.Context, out io.Writer, doc *config.Document, integrationID string) error {
	integration, err := authIntegration(doc, integrationID)
	if err != nil {
		return err
	}

	tokenPath, err := config.TokenFilePath(integrationID)
	if err != nil {
		return fmt.Errorf("getting token path: %w", err)
	}

	_, _ = fmt.Fprintf(out, "=== Planning Center Authorization (%s) ===\n\n", integrationID)

	// Generate state for CSRF protection.
	state, err := generateOAuthState()
	if err != nil {
		return fmt.Errorf("generating OAuth state: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server, _, err := startOAuthCallbackServer(callbackAddr, codeChan, errChan, state)
	if err != nil {
		return fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	redirectURI := "http://" + callbackAddr + callbackPath
	authURL := buildAuthURL(planningcenter.DefaultAuthorizeURL, integration.Credentials.ClientID, redirectURI, state)

	_, _ = fmt.Fprintln(out, "Opening browser for Planning Center authorization...")
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "If the browser doesn't open, visit this URL:")
	_, _ = fmt.Fprintln(out, authURL)
	_, _ = fmt.Fprintln(out)

	if err := openBrowser(authURL); err != nil {
		_, _ = fmt.Fprintf(out, "Could not open browser: %s\n", err)
	}

	_, _ = fmt.Fprintln(out, "Waiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
		// Success.
	case err := <-errChan:
		return fmt.Errorf("authorization failed: %w", err)
	case <-time.After(authTimeout):
		return fmt.Errorf("authorization timed out after %s", authTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Authorization received, exchanging for tokens...")

	tokens, err := exchangeCode(ctx, tokenExchangeRequest{
		ClientID:     integration.Credentials.ClientID,
		ClientSecret: integration.Credentials.ClientSecret,
		Code:         code,
		RedirectURI:  redirectURI,
		TokenURL:     planningcenter.DefaultTokenURL,
	})
	if err != nil {
		return fmt.Errorf("exchanging code for tokens: %w", err)
	}

	tokenStore, err := storage.NewFileTokenStore(integrationID, tokenPath)
	if err != nil {
		return fmt.Errorf("creating token store: %w", err)
	}

	if err := tokenStore.SaveRefreshToken(ctx, tokens.RefreshToken); err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Authorization successful!")
	_, _ = fmt.Fprintf(out, "Refresh token saved to: %s\n", tokenPath)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "You can now run:")
	_, _ = fmt.Fprintf(out, "  churchbridge sync --integration %s --dry-run\n", integrationID)

	return nil
}

// writeCallbackResponse writes an HTML response for the OAuth callback page.
// It escapes the title and message to prevent XSS attacks.
func writeCallbackResponse(w http.ResponseWriter, title string, message string) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(
		w,
		`<html><body><h1>%s</h1><p>%s</p><p>You can close this window.</p></body></html>`,
		html.EscapeString(title),
		html.EscapeString(message),
	)
}

// startOAuthCallbackServer starts a local HTTP server on addr to receive the OAuth callback.
// It sends the authorization code or error through the provided channels and returns the
// address it listens on. The callback must carry expectedState when it is non-empty.
func startOAuthCallbackServer(
	addr string,
	codeChan chan<- string,
	errChan chan<- error,
	expectedState string,
) (*http.Server, string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		errDesc := r.URL.Query().Get("error_description")
		errMsg := r.URL.Query().Get("error")
		state := r.URL.Query().Get("state")

		if errMsg != "" {
			errChan <- fmt.Errorf("%s: %s", errMsg, errDesc)
			writeCallbackResponse(w, "Authorization Failed", fmt.Sprintf("%s: %s", errMsg, errDesc))
			return
		}

		if code == "" {
			errChan <- errors.New("no authorization code received")
			writeCallbackResponse(w, "Authorization Failed", "No authorization code received.")
			return
		}

		if expectedState != "" && state != expectedState {
			errChan <- errors.New("state mismatch: possible CSRF attack")
			writeCallbackResponse(w, "Authorization Failed", "State validation failed.")
			return
		}

		codeChan <- code
		writeCallbackResponse(w, "Authorization Successful", "You can return to the terminal.")
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	return server, listener.Addr().String(), nil
}
