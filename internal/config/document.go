package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/peteski22/churchbridge/internal/alert"
	"github.com/peteski22/churchbridge/internal/church"
)

const (
	// DefaultErrorThreshold is the error count above which an error alert is raised.
	DefaultErrorThreshold = 5

	// DefaultServerAddr is the listen address for serve mode.
	DefaultServerAddr = ":8080"

	// DefaultStatusCheckInterval is how often provider status endpoints are probed.
	DefaultStatusCheckInterval = 5 * time.Minute
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Alerting holds alert thresholds and notification channels.
//
//nolint:tagliatelle // Configuration documents use snake_case.
type Alerting struct {
	// Channels receive every raised alert.
	Channels []alert.ChannelConfig `yaml:"channels" validate:"dive"`

	// Cooldown suppresses repeats of the same alert. Zero disables suppression.
	Cooldown time.Duration `yaml:"cooldown" validate:"gte=0"`

	// ErrorThreshold raises an error alert when the error count exceeds it.
	ErrorThreshold *int `yaml:"error_threshold" validate:"omitempty,gte=0"`

	// StatusCheckInterval is how often providers are probed and alerts evaluated.
	StatusCheckInterval time.Duration `yaml:"status_check_interval" validate:"gte=0"`

	// SyncTimeThreshold raises a performance alert when the average sync time exceeds it.
	SyncTimeThreshold time.Duration `yaml:"sync_time_threshold" validate:"gte=0"`
}

// Document is the configuration document describing integrations and alerting.
type Document struct {
	// Alerting configures the alert engine.
	Alerting Alerting `yaml:"alerting"`

	// Integrations lists the configured provider connections.
	Integrations []IntegrationConfig `yaml:"integrations" validate:"required,min=1,unique=ID,dive"`

	// Server configures serve mode.
	Server Server `yaml:"server"`

	// Sync tunes sync passes.
	Sync SyncTuning `yaml:"sync"`
}

// IntegrationConfig is one integration entry.
type IntegrationConfig struct {
	// Credentials are inline secrets. When empty they are loaded from the credential store.
	Credentials church.Credentials `yaml:"credentials"`

	// ID uniquely identifies the integration.
	ID string `yaml:"id" validate:"required,excludesall=/"`

	// Name is a human-readable label.
	Name string `yaml:"name"`

	// Provider is the provider type.
	Provider string `yaml:"provider" validate:"required,oneof=planning_center breeze ccb tithely"`

	// Sync controls what is synchronized and how often.
	Sync SyncSettings `yaml:"sync"`
}

// Server configures serve mode.
type Server struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// SyncSettings is the per-integration sync block.
type SyncSettings struct {
	// Enabled turns scheduled syncing on.
	Enabled bool `yaml:"enabled"`

	// Events is accepted for compatibility; events are not synchronized.
	Events bool `yaml:"events"`

	// Frequency is hourly, daily or weekly.
	Frequency string `yaml:"frequency" validate:"omitempty,oneof=hourly daily weekly"`

	// Giving enables donation sync.
	Giving bool `yaml:"giving"`

	// Groups enables group sync.
	Groups bool `yaml:"groups"`

	// People enables person sync.
	People bool `yaml:"people"`
}

// SyncTuning holds engine-wide sync settings.
//
//nolint:tagliatelle // Configuration documents use snake_case.
type SyncTuning struct {
	// MaxPages bounds the pages fetched per entity type. Zero uses the default.
	MaxPages int `yaml:"max_pages" validate:"gte=0"`

	// PageSize is the requested page size. Zero uses each provider's default.
	PageSize int `yaml:"page_size" validate:"gte=0,lte=1000"`
}

// ParseDocument decodes and validates a YAML configuration document, applying defaults.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config document: %w", err)
	}

	doc.applyDefaults()

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config document: %w", err)
	}

	return &doc, nil
}

// Integration returns the integration with the given ID.
func (d *Document) Integration(id string) (church.Integration, bool) {
	for _, ic := range d.Integrations {
		if ic.ID == id {
			return ic.ToDomainType(), true
		}
	}
	return church.Integration{}, false
}

// IntegrationIDs returns the configured integration IDs in document order.
func (d *Document) IntegrationIDs() []string {
	ids := make([]string, 0, len(d.Integrations))
	for _, ic := range d.Integrations {
		ids = append(ids, ic.ID)
	}
	return ids
}

// ToDomainTypes converts every integration entry.
func (d *Document) ToDomainTypes() []church.Integration {
	out := make([]church.Integration, 0, len(d.Integrations))
	for _, ic := range d.Integrations {
		out = append(out, ic.ToDomainType())
	}
	return out
}

// Validate checks struct tags and the rules tags cannot express.
func (d *Document) Validate() error {
	var errs []error

	if err := structValidator().Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	for i, ic := range d.Integrations {
		if ic.Sync.Enabled && ic.Sync.Frequency == "" {
			errs = append(errs, fmt.Errorf("integrations[%d].sync.frequency is required when sync is enabled", i))
		}
	}

	return errors.Join(errs...)
}

// ToDomainType converts the entry to a church.Integration.
func (ic IntegrationConfig) ToDomainType() church.Integration {
	name := ic.Name
	if name == "" {
		name = ic.ID
	}
	return church.Integration{
		Credentials: ic.Credentials,
		ID:          ic.ID,
		Name:        name,
		Provider:    church.Provider(ic.Provider),
		Sync: church.SyncConfig{
			Enabled:    ic.Sync.Enabled,
			Frequency:  church.Frequency(ic.Sync.Frequency),
			SyncEvents: ic.Sync.Events,
			SyncGiving: ic.Sync.Giving,
			SyncGroups: ic.Sync.Groups,
			SyncPeople: ic.Sync.People,
		},
	}
}

// applyDefaults fills unset optional values.
func (d *Document) applyDefaults() {
	if d.Alerting.ErrorThreshold == nil {
		threshold := DefaultErrorThreshold
		d.Alerting.ErrorThreshold = &threshold
	}
	if d.Alerting.StatusCheckInterval == 0 {
		d.Alerting.StatusCheckInterval = DefaultStatusCheckInterval
	}
	if d.Server.Addr == "" {
		d.Server.Addr = DefaultServerAddr
	}
}

// fieldError renders a validation failure using the YAML path.
func fieldError(fe validator.FieldError) error {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", path)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", path, fe.Param(), fe.Value())
	case "unique":
		return fmt.Errorf("%s must have unique %s values", path, strings.ToLower(fe.Param()))
	default:
		return fmt.Errorf("%s failed %s validation", path, fe.Tag())
	}
}

// structValidator returns the shared validator, reporting fields by their YAML names.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}
