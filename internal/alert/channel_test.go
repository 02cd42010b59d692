package alert

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// mockPublisher implements Publisher for testing.
type mockPublisher struct {
	channel string
	err     error
	message []byte
}

// Publish records the message.
func (m *mockPublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	m.channel = channel
	m.message, _ = message.([]byte)
	return redis.NewIntResult(1, m.err)
}

// mockSMSSender implements SMSSender for testing.
type mockSMSSender struct {
	failFor string
	mu      sync.Mutex
	sent    []*twilioapi.CreateMessageParams
}

// CreateMessage records the params and fails for the configured recipient.
func (m *mockSMSSender) CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, params)
	if params.To != nil && *params.To == m.failFor {
		return nil, errors.New("invalid number")
	}
	return &twilioapi.ApiV2010Message{}, nil
}

// capturedRequest is one request received by a capture server.
type capturedRequest struct {
	body   []byte
	header http.Header
	path   string
}

// newCaptureServer records each request and replies with status.
func newCaptureServer(t *testing.T, status int, reply string) (*httptest.Server, chan capturedRequest) {
	t.Helper()

	requests := make(chan capturedRequest, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{body: body, header: r.Header.Clone(), path: r.URL.Path}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)

	return server, requests
}

// testAlert returns a high severity status alert.
func testAlert() Alert {
	return Alert{
		ID:            "ccb-1-status-1748768400000000000",
		IntegrationID: "ccb-1",
		Message:       "integration ccb-1 is in error state: 503",
		Metadata:      map[string]any{"provider": "ccb"},
		Severity:      SeverityHigh,
		Timestamp:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Type:          TypeStatus,
	}
}

func TestNewChannel(t *testing.T) {
	t.Parallel()

	deps := ChannelDeps{Publisher: &mockPublisher{}, SMSSender: &mockSMSSender{}}

	tests := map[string]struct {
		cfg      ChannelConfig
		wantErr  string
		wantName string
	}{
		"webhook": {
			cfg:      ChannelConfig{Type: ChannelWebhook, URL: "https://hooks.example.org/alerts"},
			wantName: "webhook",
		},
		"named slack": {
			cfg:      ChannelConfig{Name: "ops-slack", Type: ChannelSlack, URL: "https://hooks.slack.com/x"},
			wantName: "ops-slack",
		},
		"pagerduty": {
			cfg:      ChannelConfig{RoutingKey: "key", Type: ChannelPagerDuty},
			wantName: "pagerduty",
		},
		"email": {
			cfg:      ChannelConfig{APIKey: "sg", From: "alerts@example.org", To: []string{"ops@example.org"}, Type: ChannelEmail},
			wantName: "email",
		},
		"sms": {
			cfg:      ChannelConfig{From: "+15550000000", To: []string{"+15551111111"}, Type: ChannelSMS},
			wantName: "sms",
		},
		"redis": {
			cfg:      ChannelConfig{Type: ChannelRedis},
			wantName: "redis",
		},
		"unsupported type": {
			cfg:     ChannelConfig{Type: "carrier-pigeon"},
			wantErr: `unsupported channel type "carrier-pigeon"`,
		},
		"webhook without url": {
			cfg:     ChannelConfig{Type: ChannelWebhook},
			wantErr: "url is required",
		},
		"email without recipients": {
			cfg:     ChannelConfig{APIKey: "sg", From: "alerts@example.org", Type: ChannelEmail},
			wantErr: "to is required",
		},
		"email missing key and sender": {
			cfg:     ChannelConfig{To: []string{"ops@example.org"}, Type: ChannelEmail},
			wantErr: "api_key is required\nfrom is required",
		},
		"unknown severity override": {
			cfg: ChannelConfig{
				SeverityMap: map[string]string{"critical": "p0"},
				Type:        ChannelWebhook,
				URL:         "https://hooks.example.org/alerts",
			},
			wantErr: `unknown severity "critical"`,
		},
		"negative rate": {
			cfg:     ChannelConfig{RatePerSecond: -1, Type: ChannelWebhook, URL: "https://hooks.example.org"},
			wantErr: "rate per second cannot be negative",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ch, err := NewChannel(tc.cfg, deps)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				require.Nil(t, ch)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantName, ch.Name())
		})
	}
}

func TestNewChannels(t *testing.T) {
	t.Parallel()

	_, err := NewChannels([]ChannelConfig{
		{Type: ChannelWebhook},
		{Type: ChannelSlack},
	}, ChannelDeps{})

	require.ErrorContains(t, err, "channel webhook: url is required")
	require.ErrorContains(t, err, "channel slack: url is required")

	channels, err := NewChannels([]ChannelConfig{
		{Type: ChannelWebhook, URL: "https://hooks.example.org"},
		{Name: "bus", Type: ChannelRedis},
	}, ChannelDeps{Publisher: &mockPublisher{}})
	require.NoError(t, err)
	require.Len(t, channels, 2)
}

func TestChannelTypes(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"email", "pagerduty", "redis", "slack", "sms", "webhook"}, ChannelTypes())
}

func TestSeverityMap(t *testing.T) {
	t.Parallel()

	overridden, err := pagerDutySeverities.Override(map[string]string{"medium": "error"})
	require.NoError(t, err)

	require.Equal(t, "error", overridden.Lookup(SeverityMedium))
	require.Equal(t, "critical", overridden.Lookup(SeverityHigh))
	require.Equal(t, "warning", pagerDutySeverities.Lookup(SeverityMedium), "defaults are not mutated")
	require.Equal(t, "info", overridden.Lookup(Severity("unknown")))
}

func TestWebhookChannel_Send(t *testing.T) {
	t.Parallel()

	server, requests := newCaptureServer(t, http.StatusOK, `{}`)

	ch, err := NewChannel(ChannelConfig{
		Headers:     map[string]string{"X-Token": "secret"},
		SeverityMap: map[string]string{"high": "sev1"},
		Type:        ChannelWebhook,
		URL:         server.URL + "/alerts",
	}, ChannelDeps{})
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), testAlert()))

	req := <-requests
	require.Equal(t, "/alerts", req.path)
	require.Equal(t, "secret", req.header.Get("X-Token"))

	var payload struct {
		Alert    map[string]any `json:"alert"`
		Priority string         `json:"priority"`
	}
	require.NoError(t, json.Unmarshal(req.body, &payload))
	require.Equal(t, "sev1", payload.Priority)
	require.Equal(t, "ccb-1", payload.Alert["integration_id"])
	require.Equal(t, "status", payload.Alert["type"])
	require.Equal(t, "high", payload.Alert["severity"])
}

func TestWebhookChannel_SendFailure(t *testing.T) {
	t.Parallel()

	server, _ := newCaptureServer(t, http.StatusInternalServerError, `down`)

	ch, err := NewChannel(ChannelConfig{Type: ChannelWebhook, URL: server.URL}, ChannelDeps{})
	require.NoError(t, err)

	require.ErrorContains(t, ch.Send(context.Background(), testAlert()), "unexpected status 500: down")
}

func TestSlackChannel_Send(t *testing.T) {
	t.Parallel()

	server, requests := newCaptureServer(t, http.StatusOK, `ok`)

	ch, err := NewChannel(ChannelConfig{Target: "#ops", Type: ChannelSlack, URL: server.URL}, ChannelDeps{})
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), testAlert()))

	var msg slackMessage
	require.NoError(t, json.Unmarshal((<-requests).body, &msg))
	require.Equal(t, "#ops", msg.Channel)
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, "danger", msg.Attachments[0].Color)
	require.Equal(t, testAlert().Message, msg.Attachments[0].Text)
}

func TestPagerDutyChannel_Send(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		server, requests := newCaptureServer(t, http.StatusAccepted,
			`{"status":"success","message":"Event processed","dedup_key":"churchbridge-ccb-1-status"}`)

		ch, err := NewChannel(ChannelConfig{RoutingKey: "rk", Type: ChannelPagerDuty, URL: server.URL}, ChannelDeps{})
		require.NoError(t, err)

		require.NoError(t, ch.Send(context.Background(), testAlert()))

		req := <-requests
		require.Equal(t, "/v2/enqueue", req.path)

		var event pagerDutyEvent
		require.NoError(t, json.Unmarshal(req.body, &event))
		require.Equal(t, "rk", event.RoutingKey)
		require.Equal(t, "trigger", event.EventAction)
		require.Equal(t, "churchbridge-ccb-1-status", event.DedupKey)
		require.Equal(t, "critical", event.Payload.Severity)
		require.Equal(t, "ccb", event.Payload.CustomDetails["provider"])
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()

		server, _ := newCaptureServer(t, http.StatusBadRequest, `{"status":"invalid event","message":"Event object is invalid"}`)

		ch, err := NewChannel(ChannelConfig{RoutingKey: "rk", Type: ChannelPagerDuty, URL: server.URL}, ChannelDeps{})
		require.NoError(t, err)

		require.ErrorContains(t, ch.Send(context.Background(), testAlert()), "Event object is invalid")
	})
}

func TestEmailChannel_Send(t *testing.T) {
	t.Parallel()

	server, requests := newCaptureServer(t, http.StatusAccepted, ``)

	ch, err := NewChannel(ChannelConfig{
		APIKey: "sg-key",
		From:   "alerts@example.org",
		To:     []string{"ops@example.org", "pastor@example.org"},
		Type:   ChannelEmail,
		URL:    server.URL,
	}, ChannelDeps{})
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), testAlert()))

	req := <-requests
	require.Equal(t, "/v3/mail/send", req.path)
	require.Equal(t, "Bearer sg-key", req.header.Get("Authorization"))
	require.Contains(t, string(req.body), `[URGENT] status alert for ccb-1`)
	require.Contains(t, string(req.body), "pastor@example.org")
}

func TestSMSChannel_Send(t *testing.T) {
	t.Parallel()

	sender := &mockSMSSender{failFor: "+15552222222"}

	ch, err := NewChannel(ChannelConfig{
		From: "+15550000000",
		To:   []string{"+15552222222", "+15551111111"},
		Type: ChannelSMS,
	}, ChannelDeps{SMSSender: sender})
	require.NoError(t, err)

	err = ch.Send(context.Background(), testAlert())

	require.ErrorContains(t, err, "sending to +15552222222: invalid number")
	require.Len(t, sender.sent, 2, "a failing recipient does not stop the others")
	require.Equal(t, "+15550000000", *sender.sent[1].From)
	require.Contains(t, *sender.sent[1].Body, "URGENT churchbridge:")
}

func TestRedisChannel_Send(t *testing.T) {
	t.Parallel()

	publisher := &mockPublisher{}

	ch, err := NewChannel(ChannelConfig{Type: ChannelRedis}, ChannelDeps{Publisher: publisher})
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), testAlert()))
	require.Equal(t, defaultRedisTarget, publisher.channel)
	require.Contains(t, string(publisher.message), `"priority":"p1"`)

	publisher.err = errors.New("connection reset")
	require.ErrorContains(t, ch.Send(context.Background(), testAlert()), "publishing to churchbridge:alerts")
}

func TestThrottledChannel(t *testing.T) {
	t.Parallel()

	ch, err := NewChannel(ChannelConfig{RatePerSecond: 0.001, Type: ChannelRedis}, ChannelDeps{Publisher: &mockPublisher{}})
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), testAlert()))
	require.ErrorIs(t, ch.Send(context.Background(), testAlert()), ErrThrottled)
}
