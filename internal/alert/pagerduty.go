package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// defaultPagerDutyURL is the PagerDuty Events v2 API.
const defaultPagerDutyURL = "https://events.pagerduty.com"

// pagerDutySeverities maps severities to PagerDuty event severities.
var pagerDutySeverities = SeverityMap{
	SeverityHigh:   "critical",
	SeverityLow:    "info",
	SeverityMedium: "warning",
}

// pagerDutyChannel triggers PagerDuty incidents.
type pagerDutyChannel struct {
	client     *resty.Client
	name       string
	routingKey string
	severities SeverityMap
}

// pagerDutyEvent is an Events v2 trigger.
//
//nolint:tagliatelle // PagerDuty API uses snake_case.
type pagerDutyEvent struct {
	DedupKey    string           `json:"dedup_key"`
	EventAction string           `json:"event_action"`
	Payload     pagerDutyPayload `json:"payload"`
	RoutingKey  string           `json:"routing_key"`
}

// pagerDutyPayload describes the incident.
//
//nolint:tagliatelle // PagerDuty API uses snake_case.
type pagerDutyPayload struct {
	Class         string         `json:"class"`
	Component     string         `json:"component"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Summary       string         `json:"summary"`
	Timestamp     string         `json:"timestamp"`
}

// pagerDutyResponse is the Events v2 response body.
//
//nolint:tagliatelle // PagerDuty API uses snake_case.
type pagerDutyResponse struct {
	DedupKey string `json:"dedup_key"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

func newPagerDutyChannel(cfg ChannelConfig, severities SeverityMap, deps ChannelDeps) (Channel, error) {
	if err := requireFields(map[string]string{"routing_key": cfg.RoutingKey}); err != nil {
		return nil, err
	}

	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultPagerDutyURL
	}

	client := resty.NewWithClient(deps.HTTPClient).
		SetHostURL(baseURL).
		SetHeader("Content-Type", "application/json")
	client.JSONMarshal = json.Marshal
	client.JSONUnmarshal = json.Unmarshal

	return &pagerDutyChannel{
		client:     client,
		name:       cfg.Name,
		routingKey: cfg.RoutingKey,
		severities: severities,
	}, nil
}

// Name implements Channel.
func (p *pagerDutyChannel) Name() string {
	return p.name
}

// Send implements Channel. The alert's integration and type form the dedup key so
// repeats of the same condition update one incident.
func (p *pagerDutyChannel) Send(ctx context.Context, a Alert) error {
	details := map[string]any{
		"alert_id":       a.ID,
		"integration_id": a.IntegrationID,
	}
	for k, v := range a.Metadata {
		details[k] = v
	}

	event := pagerDutyEvent{
		DedupKey:    fmt.Sprintf("churchbridge-%s-%s", a.IntegrationID, a.Type),
		EventAction: "trigger",
		Payload: pagerDutyPayload{
			Class:         string(a.Type),
			Component:     a.IntegrationID,
			CustomDetails: details,
			Severity:      p.severities.Lookup(a.Severity),
			Source:        "churchbridge",
			Summary:       a.Message,
			Timestamp:     a.Timestamp.Format(time.RFC3339),
		},
		RoutingKey: p.routingKey,
	}

	var result pagerDutyResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(event).
		SetResult(&result).
		SetError(&result).
		Post("/v2/enqueue")
	if err != nil {
		return fmt.Errorf("sending event: %w", err)
	}

	if resp.StatusCode() != http.StatusAccepted {
		return fmt.Errorf("pagerduty returned status %d: %s", resp.StatusCode(), result.Message)
	}

	return nil
}
