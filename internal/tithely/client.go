package tithely

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/transport"
)

const (
	// DefaultBaseURL is the Tithe.ly API base URL.
	DefaultBaseURL = "https://api.tithe.ly/v1"

	// DefaultRateLimit is the number of requests Tithe.ly allows per DefaultRateWindow.
	DefaultRateLimit = 120

	// DefaultRateWindow is the Tithe.ly rate limit window.
	DefaultRateWindow = time.Minute

	// defaultPageSize is the limit used when ListParams.Limit is zero.
	defaultPageSize = 50
)

// Client is a Tithe.ly adapter.
type Client struct {
	// api executes requests through the retry, rate limit and breaker stack.
	api *transport.Client
}

// Donations returns one page of transactions updated after ListParams.ModifiedSince.
func (c *Client) Donations(ctx context.Context, params church.ListParams) (*church.Page[church.Donation], error) {
	return fetchCursorPage(ctx, c, "/transactions", params, func(t Transaction) (church.Donation, error) {
		return t.ToDomainType()
	})
}

// Groups returns one page of groups.
func (c *Client) Groups(ctx context.Context, params church.ListParams) (*church.Page[church.Group], error) {
	return fetchCursorPage(ctx, c, "/groups", params, func(g Group) (church.Group, error) {
		return g.ToDomainType(), nil
	})
}

// People returns one page of people.
func (c *Client) People(ctx context.Context, params church.ListParams) (*church.Page[church.Person], error) {
	return fetchCursorPage(ctx, c, "/people", params, func(p Person) (church.Person, error) {
		return p.ToDomainType(), nil
	})
}

// Provider implements church.Adapter.
func (c *Client) Provider() church.Provider {
	return church.ProviderTithely
}

// ValidateCredentials requests the organization the key belongs to.
func (c *Client) ValidateCredentials(ctx context.Context) (bool, error) {
	if _, err := c.api.Do(ctx, transport.Request{Path: "/organization"}); err != nil {
		return false, fmt.Errorf("validating tithely credentials: %w", err)
	}
	return true, nil
}

// fetchCursorPage requests one page of a cursor-paginated collection. The cursor is opaque
// and is passed back unchanged.
func fetchCursorPage[S any, T any](
	ctx context.Context,
	c *Client,
	path string,
	params church.ListParams,
	mapFn func(S) (T, error),
) (*church.Page[T], error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if params.PageToken != "" {
		query.Set("cursor", params.PageToken)
	}
	if !params.ModifiedSince.IsZero() {
		query.Set("updatedAfter", params.ModifiedSince.UTC().Format(time.RFC3339))
	}

	resp, err := c.api.Do(ctx, transport.Request{Path: path, Query: query})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}

	items, skipped, err := transport.DecodeArray[S](resp.Body, "data")
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

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
	if gjson.GetBytes(resp.Body, "hasMore").Bool() {
		next = gjson.GetBytes(resp.Body, "nextCursor").String()
		if next == "" {
			return nil, fmt.Errorf("decoding %s: %w: hasMore without nextCursor", path, transport.ErrMalformedPage)
		}
	}

	return church.NewPage(data, next, skipped), nil
}

// NewClient creates a new Tithe.ly adapter. Options override the provider defaults.
func NewClient(apiKey string, opts ...transport.Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	defaults := []transport.Option{
		transport.WithBaseURL(DefaultBaseURL),
		transport.WithRateLimit(DefaultRateLimit, DefaultRateWindow),
	}

	api, err := transport.New(string(church.ProviderTithely), transport.Bearer(apiKey), append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	return &Client{api: api}, nil
}
