package planningcenter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/retry"
	"github.com/peteski22/churchbridge/internal/transport"
)

// fastRetry keeps retry waits short in tests.
var fastRetry = transport.WithRetryPolicy(retry.Policy{
	AttemptTimeout: time.Second,
	InitialDelay:   time.Millisecond,
	MaxAttempts:    2,
	MaxDelay:       2 * time.Millisecond,
})

// mockTokenStore implements TokenStore for testing.
type mockTokenStore struct {
	refreshToken string
	saved        []string
}

// RefreshToken returns the stored refresh token.
func (m *mockTokenStore) RefreshToken(_ context.Context) (string, error) {
	return m.refreshToken, nil
}

// SaveRefreshToken records the saved refresh token.
func (m *mockTokenStore) SaveRefreshToken(_ context.Context, token string) error {
	m.saved = append(m.saved, token)
	m.refreshToken = token
	return nil
}

const peoplePage1 = `{
  "data": [
    {"type":"Person","id":"1","attributes":{"first_name":"Ada","last_name":"Lovelace","status":"active","membership":"Member"},
     "relationships":{"emails":{"data":[{"type":"Email","id":"e1"},{"type":"Email","id":"e2"}]},"addresses":{"data":[{"type":"Address","id":"a1"}]}}},
    {"type":"Person","id":"2","attributes":{"first_name":"Grace","last_name":"Hopper","status":"inactive"}}
  ],
  "included": [
    {"type":"Email","id":"e1","attributes":{"address":"old@example.com","primary":false}},
    {"type":"Email","id":"e2","attributes":{"address":"ada@example.com","primary":true}},
    {"type":"Address","id":"a1","attributes":{"street":"1 Main St","city":"London","zip":"N1","primary":true}}
  ],
  "meta": {"total_count": 3, "count": 2, "next": {"offset": 2}}
}`

const peoplePage2 = `{
  "data": [
    {"type":"Person","id":"3","attributes":{"first_name":"Katherine","last_name":"Johnson","status":"active"}}
  ],
  "meta": {"total_count": 3, "count": 1}
}`

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		config  Config
		errMsg  string
		wantErr bool
	}{
		"personal access token": {
			config: Config{ClientID: "app", ClientSecret: "secret"},
		},
		"oauth": {
			config: Config{ClientID: "app", ClientSecret: "secret", TokenStore: &mockTokenStore{}},
		},
		"missing client id": {
			config:  Config{ClientSecret: "secret"},
			wantErr: true,
			errMsg:  "client ID is required",
		},
		"missing client secret": {
			config:  Config{ClientID: "app"},
			wantErr: true,
			errMsg:  "client secret is required",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tc.config)

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				require.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.Equal(t, church.ProviderPlanningCenter, client.Provider())
			}
		})
	}
}

func TestClient_People_TwoPages(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/people/v2/people", r.URL.Path)
		require.Equal(t, "emails,phone_numbers,addresses", r.URL.Query().Get("include"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "app", user)
		require.Equal(t, "secret", pass)

		switch r.URL.Query().Get("offset") {
		case "":
			_, _ = w.Write([]byte(peoplePage1))
		case "2":
			_, _ = w.Write([]byte(peoplePage2))
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	}))
	defer server.Close()

	client, err := NewClient(Config{ClientID: "app", ClientSecret: "secret"}, transport.WithBaseURL(server.URL), fastRetry)
	require.NoError(t, err)

	var people []church.Person
	pageSizes := 0
	err = church.FetchAll(context.Background(), client.People, church.ListParams{}, 0, func(p *church.Page[church.Person]) error {
		pageSizes += len(p.Data)
		people = append(people, p.Data...)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, 3, pageSizes)
	require.Len(t, people, 3)

	ada := people[0]
	require.Equal(t, "1", ada.ExternalID)
	require.Equal(t, "ada@example.com", ada.Email)
	require.Equal(t, "London", ada.Address.City)
	require.Equal(t, "1 Main St", ada.Address.Line1)
	require.Equal(t, "Member", ada.CustomFields["membership"])
	require.Empty(t, ada.Phone)
	require.Nil(t, people[1].Address)
}

func TestClient_People_ModifiedSince(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2025-03-01T00:00:00Z", r.URL.Query().Get("where[updated_at][gte]"))
		require.Equal(t, "25", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`{"data":[],"meta":{}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{ClientID: "app", ClientSecret: "secret"}, transport.WithBaseURL(server.URL), fastRetry)
	require.NoError(t, err)

	page, err := client.People(context.Background(), church.ListParams{Limit: 25, ModifiedSince: since})

	require.NoError(t, err)
	require.False(t, page.HasMore)
	require.Zero(t, page.Count)
}

func TestClient_Donations(t *testing.T) {
	t.Parallel()

	body := `{
	  "data": [
	    {"type":"Donation","id":"d1","attributes":{"amount_cents":2550,"amount_currency":"usd","payment_method":"ach","payment_status":"succeeded","received_at":"2025-02-01T10:00:00Z"},
	     "relationships":{"person":{"data":{"type":"Person","id":"p9"}},"designations":{"data":[{"type":"Designation","id":"des1"}]}}},
	    {"type":"Donation","id":"d2","attributes":{"amount_cents":"lots"}}
	  ],
	  "included": [
	    {"type":"Designation","id":"des1","attributes":{"amount_cents":2550},"relationships":{"fund":{"data":{"type":"Fund","id":"f1"}}}}
	  ],
	  "meta": {}
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/giving/v2/donations", r.URL.Path)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client, err := NewClient(Config{ClientID: "app", ClientSecret: "secret"}, transport.WithBaseURL(server.URL), fastRetry)
	require.NoError(t, err)

	page, err := client.Donations(context.Background(), church.ListParams{})

	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	require.Equal(t, 1, page.Skipped)

	d := page.Data[0]
	require.InDelta(t, 25.50, d.Amount, 0.001)
	require.Equal(t, "USD", d.Currency)
	require.Equal(t, "p9", d.DonorID)
	require.Equal(t, "f1", d.Fund)
	require.Equal(t, "bank_transfer", d.PaymentMethod)
	require.Equal(t, time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC), d.Date)
}

func TestClient_MalformedPagePropagates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	client, err := NewClient(Config{ClientID: "app", ClientSecret: "secret"}, transport.WithBaseURL(server.URL), fastRetry)
	require.NoError(t, err)

	page, err := client.Groups(context.Background(), church.ListParams{})

	require.ErrorIs(t, err, transport.ErrMalformedPage)
	require.Nil(t, page)
}

func TestClient_ValidateCredentials(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status    int
		wantOK    bool
		wantCreds bool
	}{
		"valid": {
			status: http.StatusOK,
			wantOK: true,
		},
		"unauthorized": {
			status:    http.StatusUnauthorized,
			wantCreds: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"data":{}}`))
			}))
			defer server.Close()

			client, err := NewClient(Config{ClientID: "app", ClientSecret: "secret"}, transport.WithBaseURL(server.URL), fastRetry)
			require.NoError(t, err)

			ok, err := client.ValidateCredentials(context.Background())

			require.Equal(t, tc.wantOK, ok)
			if tc.wantCreds {
				require.ErrorIs(t, err, church.ErrInvalidCredentials)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestClient_OAuthRefresh(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		_, _ = fmt.Fprint(w, `{"access_token":"access-1","expires_in":7200,"refresh_token":"new-refresh"}`)
	})
	mux.HandleFunc("/groups/v2/groups", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"type":"Group","id":"g1","attributes":{"name":"Youth","schedule":"Sundays","memberships_count":12}}],"meta":{}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := &mockTokenStore{refreshToken: "old-refresh"}
	client, err := NewClient(
		Config{ClientID: "app", ClientSecret: "secret", TokenStore: store, TokenURL: server.URL + "/oauth/token"},
		transport.WithBaseURL(server.URL),
		fastRetry,
	)
	require.NoError(t, err)

	for range 2 {
		page, err := client.Groups(context.Background(), church.ListParams{})
		require.NoError(t, err)
		require.Equal(t, "Youth", page.Data[0].Name)
		require.Equal(t, "12", page.Data[0].CustomFields["memberships_count"])
	}

	require.Equal(t, int32(1), tokenCalls.Load())
	require.Equal(t, []string{"new-refresh"}, store.saved)
}

func TestTokenManager_RejectedRefreshIsInvalidCredentials(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	tm := newTokenManager("app", "secret", &mockTokenStore{refreshToken: "stale"}, server.URL, server.Client())

	_, err := tm.AccessToken(context.Background())

	require.ErrorIs(t, err, church.ErrInvalidCredentials)
	require.Equal(t, retry.KindAuth, retry.Classify(err))
}
