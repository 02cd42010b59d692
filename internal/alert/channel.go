package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"golang.org/x/time/rate"
)

const (
	// ChannelEmail sends email through SendGrid.
	ChannelEmail = "email"

	// ChannelPagerDuty triggers PagerDuty incidents.
	ChannelPagerDuty = "pagerduty"

	// ChannelRedis publishes alerts to a Redis pub/sub channel.
	ChannelRedis = "redis"

	// ChannelSlack posts to a Slack incoming webhook.
	ChannelSlack = "slack"

	// ChannelSMS sends text messages through Twilio.
	ChannelSMS = "sms"

	// ChannelWebhook posts the alert as JSON to a URL.
	ChannelWebhook = "webhook"
)

// defaultChannelTimeout bounds one HTTP delivery.
const defaultChannelTimeout = 10 * time.Second

// ChannelConfig configures one notification channel. Which fields apply depends on Type.
//
//nolint:tagliatelle // Configuration documents use snake_case.
type ChannelConfig struct {
	// AccountSID is the Twilio account SID (sms).
	AccountSID string `yaml:"account_sid"`

	// Addr is the Redis address (redis).
	Addr string `yaml:"addr"`

	// APIKey is the SendGrid API key (email).
	APIKey string `yaml:"api_key"`

	// AuthToken is the Twilio auth token (sms).
	AuthToken string `yaml:"auth_token"`

	// From is the sender address or phone number (email, sms).
	From string `yaml:"from"`

	// Headers are extra request headers (webhook).
	Headers map[string]string `yaml:"headers"`

	// Name identifies the channel. Defaults to Type.
	Name string `yaml:"name"`

	// RatePerSecond throttles deliveries. Zero means unthrottled.
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gte=0"`

	// RoutingKey is the PagerDuty Events v2 routing key (pagerduty).
	RoutingKey string `yaml:"routing_key"`

	// SeverityMap overrides the channel's default severity table.
	SeverityMap map[string]string `yaml:"severity_map"`

	// Target is the Slack channel or Redis pub/sub channel (slack, redis).
	Target string `yaml:"target"`

	// To lists recipients (email, sms).
	To []string `yaml:"to"`

	// Type selects the channel implementation.
	Type string `yaml:"type" validate:"required,oneof=email pagerduty redis slack sms webhook"`

	// URL is the endpoint (webhook, slack) or an API base URL override (email, pagerduty).
	URL string `yaml:"url"`
}

// ChannelDeps are shared dependencies handed to channel constructors.
type ChannelDeps struct {
	// HTTPClient is used by HTTP channels. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// Logger is the structured logger for channels.
	Logger *slog.Logger

	// Publisher overrides the Redis client built from ChannelConfig.Addr.
	Publisher Publisher

	// SMSSender overrides the Twilio client built from the credentials.
	SMSSender SMSSender
}

// ChannelFactory builds a channel from its configuration.
type ChannelFactory func(cfg ChannelConfig, severities SeverityMap, deps ChannelDeps) (Channel, error)

// SeverityMap maps an alert severity to the destination's urgency or priority value.
type SeverityMap map[Severity]string

// channelFactories resolves a configured type to its implementation.
var channelFactories = map[string]struct {
	defaults SeverityMap
	factory  ChannelFactory
}{
	ChannelEmail:     {defaults: emailSeverities, factory: newEmailChannel},
	ChannelPagerDuty: {defaults: pagerDutySeverities, factory: newPagerDutyChannel},
	ChannelRedis:     {defaults: priorities, factory: newRedisChannel},
	ChannelSlack:     {defaults: slackSeverities, factory: newSlackChannel},
	ChannelSMS:       {defaults: smsSeverities, factory: newSMSChannel},
	ChannelWebhook:   {defaults: priorities, factory: newWebhookChannel},
}

// priorities is the default table for generic JSON destinations.
var priorities = SeverityMap{
	SeverityHigh:   "p1",
	SeverityLow:    "p3",
	SeverityMedium: "p2",
}

// throttledChannel drops deliveries beyond its rate.
type throttledChannel struct {
	Channel
	limiter *rate.Limiter
}

// ChannelTypes returns the supported channel types, sorted.
func ChannelTypes() []string {
	return slices.Sorted(maps.Keys(channelFactories))
}

// NewChannel builds one channel, applying the severity overrides and throttle.
func NewChannel(cfg ChannelConfig, deps ChannelDeps) (Channel, error) {
	entry, ok := channelFactories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported channel type %q", cfg.Type)
	}

	if cfg.Name == "" {
		cfg.Name = cfg.Type
	}
	if cfg.RatePerSecond < 0 {
		return nil, fmt.Errorf("channel %s: rate per second cannot be negative", cfg.Name)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: defaultChannelTimeout}
	}

	severities, err := entry.defaults.Override(cfg.SeverityMap)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", cfg.Name, err)
	}

	ch, err := entry.factory(cfg, severities, deps)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", cfg.Name, err)
	}

	if cfg.RatePerSecond > 0 {
		burst := max(1, int(cfg.RatePerSecond))
		ch = &throttledChannel{Channel: ch, limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)}
	}

	return ch, nil
}

// NewChannels builds every configured channel, reporting all invalid configs together.
func NewChannels(cfgs []ChannelConfig, deps ChannelDeps) ([]Channel, error) {
	var (
		channels []Channel
		errs     []error
	)
	for _, cfg := range cfgs {
		ch, err := NewChannel(cfg, deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		channels = append(channels, ch)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return channels, nil
}

// Lookup returns the mapped value, falling back to the low severity entry.
func (m SeverityMap) Lookup(s Severity) string {
	if v, ok := m[s]; ok {
		return v
	}
	return m[SeverityLow]
}

// Override returns a copy of m with the overrides applied.
func (m SeverityMap) Override(overrides map[string]string) (SeverityMap, error) {
	out := maps.Clone(m)
	var errs []error
	for k, v := range overrides {
		s := Severity(k)
		if !s.Valid() {
			errs = append(errs, fmt.Errorf("unknown severity %q in severity map", k))
			continue
		}
		out[s] = v
	}
	return out, errors.Join(errs...)
}

// Send delivers the alert unless the channel is over its rate.
func (t *throttledChannel) Send(ctx context.Context, a Alert) error {
	if !t.limiter.Allow() {
		return ErrThrottled
	}
	return t.Channel.Send(ctx, a)
}

// requireFields reports the named config fields that are empty.
func requireFields(fields map[string]string) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if fields[name] == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	return errors.Join(errs...)
}
