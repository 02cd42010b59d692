package ccb

import (
	"context"
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

// newTestClient creates a client pointed at server.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	client, err := NewClient(Config{Password: "secret", Subdomain: "grace", Username: "api"}, transport.WithBaseURL(server.URL), fastRetry)
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		config  Config
		errMsg  string
		wantErr bool
	}{
		"valid": {
			config: Config{Password: "secret", Subdomain: "grace", Username: "api"},
		},
		"missing password": {
			config:  Config{Subdomain: "grace", Username: "api"},
			wantErr: true,
			errMsg:  "password is required",
		},
		"missing subdomain": {
			config:  Config{Password: "secret", Username: "api"},
			wantErr: true,
			errMsg:  "subdomain is required",
		},
		"missing username": {
			config:  Config{Password: "secret", Subdomain: "grace"},
			wantErr: true,
			errMsg:  "username is required",
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
				require.Equal(t, church.ProviderCCB, client.Provider())
			}
		})
	}
}

func TestClient_People_TwoPages(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/api.php", r.URL.Path)
		require.Equal(t, "individual_profiles", r.URL.Query().Get("srv"))
		require.Equal(t, "2", r.URL.Query().Get("per_page"))
		require.Equal(t, "2025-03-01", r.URL.Query().Get("modified_since"))

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "api", user)
		require.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<ccb_api><response><service>individual_profiles</service><individuals count="2">
  <individual id="10">
    <first_name>Ada</first_name><last_name>Lovelace</last_name><email>ada@example.com</email>
    <giving_number>G-10</giving_number><active>true</active>
    <membership_type id="2">Member</membership_type>
    <phones><phone type="home">555-0100</phone><phone type="mobile">555-0199</phone></phones>
    <addresses><address type="mailing"><street_address>1 Main St</street_address><city>Springfield</city><state>IL</state><zip>62701</zip></address></addresses>
    <groups><group id="7">Choir</group></groups>
  </individual>
  <individual id="11"><first_name>Grace</first_name><last_name>Hopper</last_name><active>false</active></individual>
</individuals></response></ccb_api>`))
		case "2":
			_, _ = w.Write([]byte(`<ccb_api><response><individuals count="1">
  <individual id="12"><first_name>Alan</first_name><last_name>Turing</last_name></individual>
</individuals></response></ccb_api>`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)

	var people []church.Person
	params := church.ListParams{Limit: 2, ModifiedSince: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	err := church.FetchAll(context.Background(), client.People, params, 0, func(p *church.Page[church.Person]) error {
		people = append(people, p.Data...)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
	require.Len(t, people, 3)

	ada := people[0]
	require.Equal(t, "10", ada.ExternalID)
	require.Equal(t, "ada@example.com", ada.Email)
	require.Equal(t, "555-0199", ada.Phone)
	require.Equal(t, "Member", ada.Status)
	require.Equal(t, []string{"7"}, ada.GroupIDs)
	require.Equal(t, "1 Main St", ada.Address.Line1)
	require.Equal(t, "62701", ada.Address.PostalCode)
	require.Equal(t, "G-10", ada.CustomFields["giving_number"])
	require.Equal(t, "inactive", people[1].Status)
}

func TestClient_Donations_SkipsBadAmounts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "transaction_detail_list", r.URL.Query().Get("srv"))
		require.Equal(t, "2025-01-15", r.URL.Query().Get("date_start"))
		_, _ = w.Write([]byte(`<ccb_api><response><transaction_details>
  <transaction_detail id="t1">
    <date>2025-01-20</date><amount>75.50</amount><payment_type>Credit Card</payment_type>
    <individual id="10">Ada Lovelace</individual><coa id="3">General Fund</coa>
    <tax_deductible>true</tax_deductible>
  </transaction_detail>
  <transaction_detail id="t2"><amount>n/a</amount></transaction_detail>
</transaction_details></response></ccb_api>`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	page, err := client.Donations(context.Background(), church.ListParams{
		ModifiedSince: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	require.Equal(t, 1, page.Skipped)
	require.False(t, page.HasMore)

	d := page.Data[0]
	require.InDelta(t, 75.5, d.Amount, 0.001)
	require.Equal(t, "10", d.DonorID)
	require.Equal(t, "General Fund", d.Fund)
	require.Equal(t, "card", d.PaymentMethod)
	require.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), d.Date)
}

func TestClient_Groups(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "group_profiles", r.URL.Query().Get("srv"))
		_, _ = w.Write([]byte(`<ccb_api><response><groups count="1">
  <group id="7">
    <name>Choir</name><description>Sunday choir</description>
    <main_leader id="10">Ada Lovelace</main_leader>
    <leaders><leader id="10">Ada Lovelace</leader><leader id="11">Grace Hopper</leader></leaders>
    <participants><participant id="12"><name>Alan Turing</name></participant></participants>
    <meeting_day id="4">Thursday</meeting_day><meeting_time id="2">Evening</meeting_time>
    <group_type id="1">Music</group_type>
  </group>
</groups></response></ccb_api>`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	page, err := client.Groups(context.Background(), church.ListParams{})

	require.NoError(t, err)
	require.Equal(t, 1, page.Count)

	g := page.Data[0]
	require.Equal(t, "Choir", g.Name)
	require.Equal(t, []string{"10", "11"}, g.LeaderIDs)
	require.Equal(t, []string{"12"}, g.MemberIDs)
	require.Equal(t, "Thursday Evening", g.Schedule)
	require.Equal(t, "Music", g.CustomFields["group_type"])
}

func TestClient_ErrorsInBody(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<ccb_api><response><errors><error number="002" type="Service Permission">Invalid service</error></errors></response></ccb_api>`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	_, err := client.People(context.Background(), church.ListParams{})

	require.Error(t, err)
	require.Equal(t, retry.KindValidation, retry.Classify(err))
	require.Contains(t, err.Error(), "Invalid service")
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_MalformedXML(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<ccb_api><response><individuals>`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	_, err := client.People(context.Background(), church.ListParams{})

	require.ErrorIs(t, err, transport.ErrMalformedPage)
}

func TestClient_CheckStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "api_status", r.URL.Query().Get("srv"))
		_, _ = w.Write([]byte(`<ccb_api><response><service>api_status</service></response></ccb_api>`))
	}))
	defer server.Close()

	client := newTestClient(t, server)

	require.NoError(t, client.CheckStatus(context.Background()))

	ok, err := client.ValidateCredentials(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClient_ValidateCredentials_Unauthorized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server)

	ok, err := client.ValidateCredentials(context.Background())

	require.False(t, ok)
	require.ErrorIs(t, err, church.ErrInvalidCredentials)
}
