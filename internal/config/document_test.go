package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peteski22/churchbridge/internal/alert"
	"github.com/peteski22/churchbridge/internal/church"
)

const validDocument = `
integrations:
  - id: pco-main
    name: Planning Center
    provider: planning_center
    sync:
      enabled: true
      frequency: hourly
      people: true
      groups: true
  - id: giving
    provider: tithely
    credentials:
      api_key: tk_live
    sync:
      enabled: false
      giving: true
alerting:
  error_threshold: 3
  sync_time_threshold: 10m
  status_check_interval: 2m
  cooldown: 30m
  channels:
    - type: slack
      url: https://hooks.slack.com/services/T000/B000/XXX
      severity_map:
        medium: danger
    - type: pagerduty
      routing_key: rk
      rate_per_second: 0.5
sync:
  page_size: 50
server:
  addr: 127.0.0.1:9090
`

func TestParseDocument(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument([]byte(validDocument))
	require.NoError(t, err)

	require.Equal(t, []string{"pco-main", "giving"}, doc.IntegrationIDs())
	require.Equal(t, 3, *doc.Alerting.ErrorThreshold)
	require.Equal(t, 10*time.Minute, doc.Alerting.SyncTimeThreshold)
	require.Equal(t, 2*time.Minute, doc.Alerting.StatusCheckInterval)
	require.Equal(t, 30*time.Minute, doc.Alerting.Cooldown)
	require.Equal(t, 50, doc.Sync.PageSize)
	require.Equal(t, "127.0.0.1:9090", doc.Server.Addr)

	require.Len(t, doc.Alerting.Channels, 2)
	require.Equal(t, alert.ChannelConfig{
		SeverityMap: map[string]string{"medium": "danger"},
		Type:        alert.ChannelSlack,
		URL:         "https://hooks.slack.com/services/T000/B000/XXX",
	}, doc.Alerting.Channels[0])
	require.InDelta(t, 0.5, doc.Alerting.Channels[1].RatePerSecond, 0)

	pco, ok := doc.Integration("pco-main")
	require.True(t, ok)
	require.Equal(t, church.Integration{
		ID:       "pco-main",
		Name:     "Planning Center",
		Provider: church.ProviderPlanningCenter,
		Sync: church.SyncConfig{
			Enabled:    true,
			Frequency:  church.FrequencyHourly,
			SyncGroups: true,
			SyncPeople: true,
		},
	}, pco)

	giving, ok := doc.Integration("giving")
	require.True(t, ok)
	require.Equal(t, "giving", giving.Name, "name defaults to the ID")
	require.Equal(t, "tk_live", giving.Credentials.APIKey)

	_, ok = doc.Integration("missing")
	require.False(t, ok)

	require.Len(t, doc.ToDomainTypes(), 2)
}

func TestParseDocument_Defaults(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument([]byte("integrations:\n  - id: a\n    provider: ccb\n"))
	require.NoError(t, err)

	require.Equal(t, DefaultErrorThreshold, *doc.Alerting.ErrorThreshold)
	require.Equal(t, DefaultStatusCheckInterval, doc.Alerting.StatusCheckInterval)
	require.Equal(t, DefaultServerAddr, doc.Server.Addr)
	require.Zero(t, doc.Alerting.SyncTimeThreshold)

	doc, err = ParseDocument([]byte("integrations:\n  - id: a\n    provider: ccb\nalerting:\n  error_threshold: 0\n"))
	require.NoError(t, err)
	require.Equal(t, 0, *doc.Alerting.ErrorThreshold, "an explicit zero is kept")
}

func TestParseDocument_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		doc          string
		errFragments []string
	}{
		"malformed yaml": {
			doc:          "integrations: [",
			errFragments: []string{"parsing config document"},
		},
		"no integrations": {
			doc:          "alerting:\n  error_threshold: 1\n",
			errFragments: []string{"integrations is required"},
		},
		"unknown provider": {
			doc:          "integrations:\n  - id: a\n    provider: fellowship_one\n",
			errFragments: []string{`integrations[0].provider must be one of [planning_center breeze ccb tithely], got "fellowship_one"`},
		},
		"missing id": {
			doc:          "integrations:\n  - provider: ccb\n",
			errFragments: []string{"integrations[0].id is required"},
		},
		"duplicate ids": {
			doc:          "integrations:\n  - id: a\n    provider: ccb\n  - id: a\n    provider: breeze\n",
			errFragments: []string{"integrations must have unique id values"},
		},
		"enabled without frequency": {
			doc:          "integrations:\n  - id: a\n    provider: ccb\n    sync:\n      enabled: true\n",
			errFragments: []string{"integrations[0].sync.frequency is required when sync is enabled"},
		},
		"unknown frequency": {
			doc:          "integrations:\n  - id: a\n    provider: ccb\n    sync:\n      frequency: monthly\n",
			errFragments: []string{"integrations[0].sync.frequency must be one of [hourly daily weekly]"},
		},
		"bad channel": {
			doc: "integrations:\n  - id: a\n    provider: ccb\nalerting:\n  channels:\n    - type: fax\n",
			errFragments: []string{
				`alerting.channels[0].type must be one of [email pagerduty redis slack sms webhook], got "fax"`,
			},
		},
		"negative values": {
			doc: "integrations:\n  - id: a\n    provider: ccb\nalerting:\n  error_threshold: -1\nsync:\n  page_size: -5\n",
			errFragments: []string{
				"alerting.error_threshold failed gte validation",
				"sync.page_size failed gte validation",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseDocument([]byte(tc.doc))

			require.Error(t, err)
			for _, fragment := range tc.errFragments {
				require.ErrorContains(t, err, fragment)
			}
		})
	}
}
