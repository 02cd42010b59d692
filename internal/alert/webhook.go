package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// slackSeverities maps severities to Slack attachment colors.
var slackSeverities = SeverityMap{
	SeverityHigh:   "danger",
	SeverityLow:    "good",
	SeverityMedium: "warning",
}

// slackAttachment is one Slack message attachment.
type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Text   string       `json:"text"`
	Title  string       `json:"title"`
	Ts     int64        `json:"ts"`
}

// slackChannel posts alerts to a Slack incoming webhook.
type slackChannel struct {
	client *http.Client
	colors SeverityMap
	name   string
	target string
	url    string
}

// slackField is one short field in an attachment.
type slackField struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// slackMessage is the incoming webhook payload.
type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
}

// webhookChannel posts the alert as JSON.
type webhookChannel struct {
	client     *http.Client
	headers    map[string]string
	name       string
	priorities SeverityMap
	url        string
}

// webhookPayload is the generic JSON body: the alert plus the mapped priority.
type webhookPayload struct {
	Alert    Alert  `json:"alert"`
	Priority string `json:"priority"`
}

func newSlackChannel(cfg ChannelConfig, severities SeverityMap, deps ChannelDeps) (Channel, error) {
	if err := requireFields(map[string]string{"url": cfg.URL}); err != nil {
		return nil, err
	}
	return &slackChannel{
		client: deps.HTTPClient,
		colors: severities,
		name:   cfg.Name,
		target: cfg.Target,
		url:    cfg.URL,
	}, nil
}

func newWebhookChannel(cfg ChannelConfig, severities SeverityMap, deps ChannelDeps) (Channel, error) {
	if err := requireFields(map[string]string{"url": cfg.URL}); err != nil {
		return nil, err
	}
	return &webhookChannel{
		client:     deps.HTTPClient,
		headers:    cfg.Headers,
		name:       cfg.Name,
		priorities: severities,
		url:        cfg.URL,
	}, nil
}

// Name implements Channel.
func (s *slackChannel) Name() string {
	return s.name
}

// Send implements Channel.
func (s *slackChannel) Send(ctx context.Context, a Alert) error {
	msg := slackMessage{
		Channel: s.target,
		Text:    fmt.Sprintf("Integration alert: %s", a.IntegrationID),
		Attachments: []slackAttachment{{
			Color: s.colors.Lookup(a.Severity),
			Fields: []slackField{
				{Short: true, Title: "Type", Value: string(a.Type)},
				{Short: true, Title: "Severity", Value: string(a.Severity)},
				{Short: true, Title: "Integration", Value: a.IntegrationID},
			},
			Text:  a.Message,
			Title: fmt.Sprintf("%s alert", a.Type),
			Ts:    a.Timestamp.Unix(),
		}},
	}
	return postJSON(ctx, s.client, s.url, nil, msg)
}

// Name implements Channel.
func (w *webhookChannel) Name() string {
	return w.name
}

// Send implements Channel.
func (w *webhookChannel) Send(ctx context.Context, a Alert) error {
	return postJSON(ctx, w.client, w.url, w.headers, webhookPayload{
		Alert:    a,
		Priority: w.priorities.Lookup(a.Severity),
	})
}

// postJSON posts body as JSON and treats any non-2xx response as an error.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}

	return nil
}
