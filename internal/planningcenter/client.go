package planningcenter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/transport"
)

const (
	// DefaultBaseURL is the Planning Center API base URL.
	DefaultBaseURL = "https://api.planningcenteronline.com"

	// DefaultRateLimit is the number of requests Planning Center allows per DefaultRateWindow.
	DefaultRateLimit = 100

	// DefaultRateWindow is the Planning Center rate limit window.
	DefaultRateWindow = 20 * time.Second

	// defaultPageSize is the per_page value used when ListParams.Limit is zero.
	defaultPageSize = 100

	// maxPageSize is the largest per_page Planning Center accepts.
	maxPageSize = 100
)

// Client is a Planning Center adapter.
type Client struct {
	// api executes requests through the retry, rate limit and breaker stack.
	api *transport.Client
}

// Config holds the required configuration for creating a Client.
type Config struct {
	// ClientID is the OAuth client ID, or the personal access token application ID when TokenStore is nil.
	ClientID string

	// ClientSecret is the OAuth client secret, or the personal access token secret when TokenStore is nil.
	ClientSecret string

	// TokenStore provides OAuth refresh tokens. When nil the client authenticates with a personal access token.
	TokenStore TokenStore

	// TokenURL overrides the OAuth token endpoint.
	TokenURL string
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("client ID is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required"))
	}
	return errors.Join(errs...)
}

// CheckStatus probes the API root. It implements church.StatusChecker.
func (c *Client) CheckStatus(ctx context.Context) error {
	if _, err := c.api.Do(ctx, transport.Request{Path: "/people/v2"}); err != nil {
		return fmt.Errorf("checking planning center status: %w", err)
	}
	return nil
}

// Donations returns one page of giving donations.
func (c *Client) Donations(ctx context.Context, params church.ListParams) (*church.Page[church.Donation], error) {
	query := url.Values{}
	query.Set("include", "designations")
	query.Set("order", "updated_at")

	return fetchPage(ctx, c, "/giving/v2/donations", query, params, toDonation)
}

// Groups returns one page of groups.
func (c *Client) Groups(ctx context.Context, params church.ListParams) (*church.Page[church.Group], error) {
	query := url.Values{}
	query.Set("order", "name")

	return fetchPage(ctx, c, "/groups/v2/groups", query, params, func(r resource, _ included) (church.Group, error) {
		return toGroup(r)
	})
}

// People returns one page of people with their emails, phone numbers and addresses.
func (c *Client) People(ctx context.Context, params church.ListParams) (*church.Page[church.Person], error) {
	query := url.Values{}
	query.Set("include", "emails,phone_numbers,addresses")
	query.Set("order", "updated_at")

	return fetchPage(ctx, c, "/people/v2/people", query, params, toPerson)
}

// Provider implements church.Adapter.
func (c *Client) Provider() church.Provider {
	return church.ProviderPlanningCenter
}

// ValidateCredentials requests the people API root.
func (c *Client) ValidateCredentials(ctx context.Context) (bool, error) {
	if _, err := c.api.Do(ctx, transport.Request{Path: "/people/v2"}); err != nil {
		return false, fmt.Errorf("validating planning center credentials: %w", err)
	}
	return true, nil
}

// fetchPage requests one offset page of a JSON:API collection and maps each resource.
// Resources that fail to map are counted as skipped.
func fetchPage[T any](
	ctx context.Context,
	c *Client,
	path string,
	query url.Values,
	params church.ListParams,
	mapFn func(resource, included) (T, error),
) (*church.Page[T], error) {
	perPage := params.Limit
	if perPage <= 0 {
		perPage = defaultPageSize
	}
	query.Set("per_page", strconv.Itoa(min(perPage, maxPageSize)))

	if params.PageToken != "" {
		offset, err := strconv.Atoi(params.PageToken)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("invalid page token %q", params.PageToken)
		}
		query.Set("offset", strconv.Itoa(offset))
	}
	if !params.ModifiedSince.IsZero() {
		query.Set("where[updated_at][gte]", params.ModifiedSince.UTC().Format(time.RFC3339))
	}

	resp, err := c.api.Do(ctx, transport.Request{Path: path, Query: query})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}

	resources, skipped, err := transport.DecodeArray[resource](resp.Body, "data")
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	var sideloads []resource
	if gjson.GetBytes(resp.Body, "included").IsArray() {
		sideloads, _, err = transport.DecodeArray[resource](resp.Body, "included")
		if err != nil {
			return nil, fmt.Errorf("decoding %s included: %w", path, err)
		}
	}
	inc := newIncluded(sideloads)

	data := make([]T, 0, len(resources))
	for _, r := range resources {
		item, err := mapFn(r, inc)
		if err != nil {
			skipped++
			continue
		}
		data = append(data, item)
	}

	var next string
	if offset := gjson.GetBytes(resp.Body, "meta.next.offset"); offset.Exists() {
		next = strconv.FormatInt(offset.Int(), 10)
	}

	return church.NewPage(data, next, skipped), nil
}

// NewClient creates a new Planning Center adapter. Options override the provider defaults.
func NewClient(cfg Config, opts ...transport.Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	auth := transport.Basic(cfg.ClientID, cfg.ClientSecret)
	if cfg.TokenStore != nil {
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = DefaultTokenURL
		}
		tm := newTokenManager(cfg.ClientID, cfg.ClientSecret, cfg.TokenStore, tokenURL, &http.Client{Timeout: 30 * time.Second})
		auth = transport.TokenSource(tm.AccessToken)
	}

	defaults := []transport.Option{
		transport.WithBaseURL(DefaultBaseURL),
		transport.WithRateLimit(DefaultRateLimit, DefaultRateWindow),
	}

	api, err := transport.New(string(church.ProviderPlanningCenter), auth, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	return &Client{api: api}, nil
}
