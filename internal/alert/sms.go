package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// smsMaxLength keeps a message within a few SMS segments.
const smsMaxLength = 320

// smsSeverities maps severities to message prefixes.
var smsSeverities = SeverityMap{
	SeverityHigh:   "URGENT",
	SeverityLow:    "INFO",
	SeverityMedium: "WARN",
}

// SMSSender creates text messages. The Twilio REST client's Api service satisfies it.
type SMSSender interface {
	// CreateMessage sends one message.
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// smsChannel sends alerts as text messages.
type smsChannel struct {
	from     string
	name     string
	prefixes SeverityMap
	sender   SMSSender
	to       []string
}

func newSMSChannel(cfg ChannelConfig, severities SeverityMap, deps ChannelDeps) (Channel, error) {
	if err := requireFields(map[string]string{"from": cfg.From}); err != nil {
		return nil, err
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("to is required")
	}

	sender := deps.SMSSender
	if sender == nil {
		err := requireFields(map[string]string{"account_sid": cfg.AccountSID, "auth_token": cfg.AuthToken})
		if err != nil {
			return nil, err
		}
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Password: cfg.AuthToken,
			Username: cfg.AccountSID,
		})
		sender = client.Api
	}

	return &smsChannel{
		from:     cfg.From,
		name:     cfg.Name,
		prefixes: severities,
		sender:   sender,
		to:       cfg.To,
	}, nil
}

// Name implements Channel.
func (s *smsChannel) Name() string {
	return s.name
}

// Send implements Channel. Every recipient is attempted; failures are joined.
func (s *smsChannel) Send(ctx context.Context, a Alert) error {
	body := fmt.Sprintf("%s churchbridge: %s", s.prefixes.Lookup(a.Severity), a.Message)
	if len(body) > smsMaxLength {
		body = body[:smsMaxLength-3] + "..."
	}

	var errs []error
	for _, to := range s.to {
		if err := ctx.Err(); err != nil {
			return err
		}

		params := &twilioapi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.from)
		params.SetBody(body)

		if _, err := s.sender.CreateMessage(params); err != nil {
			errs = append(errs, fmt.Errorf("sending to %s: %w", to, err))
		}
	}

	return errors.Join(errs...)
}
