package church

const (
	// FrequencyDaily runs a sync pass once a day.
	FrequencyDaily Frequency = "daily"

	// FrequencyHourly runs a sync pass once an hour.
	FrequencyHourly Frequency = "hourly"

	// FrequencyWeekly runs a sync pass once a week.
	FrequencyWeekly Frequency = "weekly"
)

// Credentials holds the secrets an adapter needs. Which fields apply depends on the provider.
type Credentials struct {
	// APIKey is a static API key (Breeze, Tithe.ly).
	APIKey string `json:"api_key,omitempty" yaml:"api_key"`

	// BaseURL overrides the provider's default API base URL.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url"`

	// ClientID is the OAuth client identifier (Planning Center).
	ClientID string `json:"client_id,omitempty" yaml:"client_id"`

	// ClientSecret is the OAuth client secret (Planning Center).
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret"`

	// Password is the HTTP Basic password (CCB).
	Password string `json:"password,omitempty" yaml:"password"`

	// Subdomain is the church's tenant subdomain (Breeze, CCB).
	Subdomain string `json:"subdomain,omitempty" yaml:"subdomain"`

	// Username is the HTTP Basic user name (CCB).
	Username string `json:"username,omitempty" yaml:"username"`
}

// Frequency is how often an integration is synchronized.
type Frequency string

// Integration is one configured connection to a provider.
type Integration struct {
	// Credentials are the provider secrets.
	Credentials Credentials

	// ID uniquely identifies the integration.
	ID string

	// Name is a human-readable label.
	Name string

	// Provider is the provider type.
	Provider Provider

	// Sync controls what is synchronized and how often.
	Sync SyncConfig
}

// SyncConfig controls which entity types an integration synchronizes and how often.
type SyncConfig struct {
	// Enabled turns scheduled syncing on.
	Enabled bool

	// Frequency is the schedule for automatic passes.
	Frequency Frequency

	// SyncEvents is accepted for configuration compatibility; events are not a synchronized entity.
	SyncEvents bool

	// SyncGiving enables donation sync.
	SyncGiving bool

	// SyncGroups enables group sync.
	SyncGroups bool

	// SyncPeople enables person sync.
	SyncPeople bool
}

// EntityTypes returns the entity types enabled by the config, in sync order.
func (c SyncConfig) EntityTypes() []EntityType {
	var types []EntityType
	if c.SyncPeople {
		types = append(types, EntityPeople)
	}
	if c.SyncGroups {
		types = append(types, EntityGroups)
	}
	if c.SyncGiving {
		types = append(types, EntityGiving)
	}
	return types
}

// Allows reports whether the config enables the entity type.
func (c SyncConfig) Allows(e EntityType) bool {
	switch e {
	case EntityPeople:
		return c.SyncPeople
	case EntityGroups:
		return c.SyncGroups
	case EntityGiving:
		return c.SyncGiving
	default:
		return false
	}
}

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyHourly, FrequencyWeekly:
		return true
	default:
		return false
	}
}
