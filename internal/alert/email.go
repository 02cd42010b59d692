package alert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	// defaultSendGridHost is the SendGrid API host.
	defaultSendGridHost = "https://api.sendgrid.com"

	// sendGridMailPath is the mail send endpoint.
	sendGridMailPath = "/v3/mail/send"
)

// emailSeverities maps severities to subject prefixes.
var emailSeverities = SeverityMap{
	SeverityHigh:   "[URGENT]",
	SeverityLow:    "[INFO]",
	SeverityMedium: "[WARNING]",
}

// emailChannel sends alerts through SendGrid.
type emailChannel struct {
	apiKey   string
	from     *mail.Email
	host     string
	name     string
	prefixes SeverityMap
	to       []string
}

func newEmailChannel(cfg ChannelConfig, severities SeverityMap, _ ChannelDeps) (Channel, error) {
	err := requireFields(map[string]string{"api_key": cfg.APIKey, "from": cfg.From})
	if err != nil {
		return nil, err
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("to is required")
	}

	host := cfg.URL
	if host == "" {
		host = defaultSendGridHost
	}

	return &emailChannel{
		apiKey:   cfg.APIKey,
		from:     mail.NewEmail("churchbridge", cfg.From),
		host:     host,
		name:     cfg.Name,
		prefixes: severities,
		to:       cfg.To,
	}, nil
}

// Name implements Channel.
func (e *emailChannel) Name() string {
	return e.name
}

// Send implements Channel. One message is addressed to every recipient.
func (e *emailChannel) Send(ctx context.Context, a Alert) error {
	subject := fmt.Sprintf("%s %s alert for %s", e.prefixes.Lookup(a.Severity), a.Type, a.IntegrationID)

	p := mail.NewPersonalization()
	for _, addr := range e.to {
		p.AddTos(mail.NewEmail("", addr))
	}

	msg := mail.NewV3Mail()
	msg.SetFrom(e.from)
	msg.Subject = subject
	msg.AddPersonalizations(p)
	msg.AddContent(mail.NewContent("text/plain", emailBody(a)))

	req := sendgrid.GetRequest(e.apiKey, sendGridMailPath, e.host)
	req.Method = http.MethodPost
	req.Body = mail.GetRequestBody(msg)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}

	return nil
}

// emailBody renders the plain-text body.
func emailBody(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", a.Message)
	fmt.Fprintf(&b, "Integration: %s\n", a.IntegrationID)
	fmt.Fprintf(&b, "Type: %s\n", a.Type)
	fmt.Fprintf(&b, "Severity: %s\n", a.Severity)
	fmt.Fprintf(&b, "Raised: %s\n", a.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))

	keys := make([]string, 0, len(a.Metadata))
	for k := range a.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, a.Metadata[k])
	}

	fmt.Fprintf(&b, "\nAlert ID: %s\n", a.ID)
	return b.String()
}
