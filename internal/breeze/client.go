package breeze

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/transport"
)

const (
	// DefaultRateLimit is the number of requests Breeze allows per DefaultRateWindow.
	DefaultRateLimit = 20

	// DefaultRateWindow is the Breeze rate limit window.
	DefaultRateWindow = time.Minute

	// defaultPageSize is the limit used when ListParams.Limit is zero.
	defaultPageSize = 100
)

// Client is a Breeze adapter.
type Client struct {
	// api executes requests through the retry, rate limit and breaker stack.
	api *transport.Client
}

// Config holds the required configuration for creating a Client.
type Config struct {
	// APIKey is the Breeze API key.
	APIKey string

	// Subdomain is the church's Breeze subdomain.
	Subdomain string
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("API key is required"))
	}
	if c.Subdomain == "" {
		errs = append(errs, errors.New("subdomain is required"))
	}
	return errors.Join(errs...)
}

// Donations returns one page of contributions. ModifiedSince maps to the contribution start date.
func (c *Client) Donations(ctx context.Context, params church.ListParams) (*church.Page[church.Donation], error) {
	query := url.Values{}
	if !params.ModifiedSince.IsZero() {
		query.Set("start", params.ModifiedSince.UTC().Format("2-1-2006"))
	}

	return fetchOffsetPage(ctx, c, "/giving/list", query, params, func(item Contribution) (church.Donation, error) {
		return item.ToDomainType()
	})
}

// Groups returns every tag as a group. Breeze lists tags in a single response.
func (c *Client) Groups(ctx context.Context, params church.ListParams) (*church.Page[church.Group], error) {
	if params.PageToken != "" {
		return church.NewPage[church.Group](nil, "", 0), nil
	}

	resp, err := c.api.Do(ctx, transport.Request{Path: "/tags/list_tags"})
	if err != nil {
		return nil, fmt.Errorf("fetching tags: %w", err)
	}

	tags, skipped, err := transport.DecodeArray[Tag](resp.Body, "")
	if err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	groups := make([]church.Group, 0, len(tags))
	for _, t := range tags {
		groups = append(groups, t.ToDomainType())
	}

	return church.NewPage(groups, "", skipped), nil
}

// People returns one page of people with profile details.
func (c *Client) People(ctx context.Context, params church.ListParams) (*church.Page[church.Person], error) {
	query := url.Values{}
	query.Set("details", "1")

	return fetchOffsetPage(ctx, c, "/people", query, params, func(item Person) (church.Person, error) {
		return item.ToDomainType(), nil
	})
}

// Provider implements church.Adapter.
func (c *Client) Provider() church.Provider {
	return church.ProviderBreeze
}

// ValidateCredentials requests the account summary.
func (c *Client) ValidateCredentials(ctx context.Context) (bool, error) {
	if _, err := c.api.Do(ctx, transport.Request{Path: "/account/summary"}); err != nil {
		return false, fmt.Errorf("validating breeze credentials: %w", err)
	}
	return true, nil
}

// fetchOffsetPage requests one limit/offset page. Breeze has no cursor, so a full page
// implies another one may follow and the token is the next offset.
func fetchOffsetPage[S any, T any](
	ctx context.Context,
	c *Client,
	path string,
	query url.Values,
	params church.ListParams,
	mapFn func(S) (T, error),
) (*church.Page[T], error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	offset := 0
	if params.PageToken != "" {
		var err error
		offset, err = strconv.Atoi(params.PageToken)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("invalid page token %q", params.PageToken)
		}
	}

	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	resp, err := c.api.Do(ctx, transport.Request{Path: path, Query: query})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}

	items, skipped, err := transport.DecodeArray[S](resp.Body, "")
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	returned := len(items) + skipped

	data := make([]T, 0, len(items))
	for _, item := range items {
		mapped, err := mapFn(item)
		if err != nil {
			skipped++
			continue
		}
		data = append(data, mapped)
	}

	var next string
	if returned >= limit {
		next = strconv.Itoa(offset + limit)
	}

	return church.NewPage(data, next, skipped), nil
}

// NewClient creates a new Breeze adapter. Options override the provider defaults.
func NewClient(cfg Config, opts ...transport.Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	defaults := []transport.Option{
		transport.WithBaseURL(fmt.Sprintf("https://%s.breezechms.com/api", cfg.Subdomain)),
		transport.WithRateLimit(DefaultRateLimit, DefaultRateWindow),
	}

	api, err := transport.New(string(church.ProviderBreeze), transport.APIKeyHeader("Api-Key", cfg.APIKey), append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	return &Client{api: api}, nil
}
