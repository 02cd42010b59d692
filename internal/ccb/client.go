package ccb

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/retry"
	"github.com/peteski22/churchbridge/internal/transport"
)

const (
	// DefaultRateLimit is the number of requests CCB allows per DefaultRateWindow.
	DefaultRateLimit = 60

	// DefaultRateWindow is the CCB rate limit window.
	DefaultRateWindow = time.Minute

	// apiPath is the single RPC endpoint every service is called through.
	apiPath = "/api.php"

	// defaultPageSize is the per_page value used when ListParams.Limit is zero.
	defaultPageSize = 100
)

// Client is a Church Community Builder adapter.
type Client struct {
	// api executes requests through the retry, rate limit and breaker stack.
	api *transport.Client
}

// Config holds the required configuration for creating a Client.
type Config struct {
	// Password is the API user's password.
	Password string

	// Subdomain is the church's CCB subdomain.
	Subdomain string

	// Username is the API user name.
	Username string
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if c.Subdomain == "" {
		errs = append(errs, errors.New("subdomain is required"))
	}
	if c.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	return errors.Join(errs...)
}

// CheckStatus calls the api_status service. It implements church.StatusChecker.
func (c *Client) CheckStatus(ctx context.Context) error {
	if _, err := c.call(ctx, "api_status", url.Values{}); err != nil {
		return fmt.Errorf("checking ccb status: %w", err)
	}
	return nil
}

// Donations returns one page of transaction details.
func (c *Client) Donations(ctx context.Context, params church.ListParams) (*church.Page[church.Donation], error) {
	query := url.Values{}
	if !params.ModifiedSince.IsZero() {
		query.Set("date_start", params.ModifiedSince.UTC().Format(time.DateOnly))
	}

	return fetchPage(ctx, c, "transaction_detail_list", query, params,
		func(r *response) []Transaction { return r.Transactions },
		func(t Transaction) (church.Donation, error) { return t.ToDomainType() },
	)
}

// Groups returns one page of group profiles.
func (c *Client) Groups(ctx context.Context, params church.ListParams) (*church.Page[church.Group], error) {
	query := url.Values{}
	query.Set("include_participants", "true")
	if !params.ModifiedSince.IsZero() {
		query.Set("modified_since", params.ModifiedSince.UTC().Format(time.DateOnly))
	}

	return fetchPage(ctx, c, "group_profiles", query, params,
		func(r *response) []Group { return r.Groups },
		func(g Group) (church.Group, error) { return g.ToDomainType(), nil },
	)
}

// People returns one page of individual profiles.
func (c *Client) People(ctx context.Context, params church.ListParams) (*church.Page[church.Person], error) {
	query := url.Values{}
	if !params.ModifiedSince.IsZero() {
		query.Set("modified_since", params.ModifiedSince.UTC().Format(time.DateOnly))
	}

	return fetchPage(ctx, c, "individual_profiles", query, params,
		func(r *response) []Individual { return r.Individuals },
		func(i Individual) (church.Person, error) { return i.ToDomainType(), nil },
	)
}

// Provider implements church.Adapter.
func (c *Client) Provider() church.Provider {
	return church.ProviderCCB
}

// ValidateCredentials calls the api_status service.
func (c *Client) ValidateCredentials(ctx context.Context) (bool, error) {
	if _, err := c.call(ctx, "api_status", url.Values{}); err != nil {
		return false, fmt.Errorf("validating ccb credentials: %w", err)
	}
	return true, nil
}

// call invokes one CCB service and decodes the envelope. Errors reported inside a
// 200 response are returned as validation errors.
func (c *Client) call(ctx context.Context, service string, query url.Values) (*response, error) {
	query.Set("srv", service)

	resp, err := c.api.Do(ctx, transport.Request{
		Header: http.Header{"Accept": []string{"application/xml"}},
		Path:   apiPath,
		Query:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", service, err)
	}

	var env envelope
	if err := xml.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %w", service, transport.ErrMalformedPage, err)
	}

	if len(env.Response.Errors) > 0 {
		msgs := make([]string, 0, len(env.Response.Errors))
		for _, e := range env.Response.Errors {
			msgs = append(msgs, fmt.Sprintf("%s %s: %s", e.Number, e.Type, strings.TrimSpace(e.Message)))
		}
		return nil, retry.NewError(retry.KindValidation, fmt.Errorf("%s: %s", service, strings.Join(msgs, "; ")))
	}

	return &env.Response, nil
}

// fetchPage requests one numbered page. CCB pages are 1-indexed integers; a full page
// implies another one may follow.
func fetchPage[S any, T any](
	ctx context.Context,
	c *Client,
	service string,
	query url.Values,
	params church.ListParams,
	items func(*response) []S,
	mapFn func(S) (T, error),
) (*church.Page[T], error) {
	perPage := params.Limit
	if perPage <= 0 {
		perPage = defaultPageSize
	}

	page := 1
	if params.PageToken != "" {
		var err error
		page, err = strconv.Atoi(params.PageToken)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("invalid page token %q", params.PageToken)
		}
	}

	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	resp, err := c.call(ctx, service, query)
	if err != nil {
		return nil, err
	}

	raw := items(resp)
	data := make([]T, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		mapped, err := mapFn(item)
		if err != nil {
			skipped++
			continue
		}
		data = append(data, mapped)
	}

	var next string
	if len(raw) >= perPage {
		next = strconv.Itoa(page + 1)
	}

	return church.NewPage(data, next, skipped), nil
}

// NewClient creates a new CCB adapter. Options override the provider defaults.
func NewClient(cfg Config, opts ...transport.Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	defaults := []transport.Option{
		transport.WithBaseURL(fmt.Sprintf("https://%s.ccbchurch.com", cfg.Subdomain)),
		transport.WithRateLimit(DefaultRateLimit, DefaultRateWindow),
	}

	api, err := transport.New(string(church.ProviderCCB), transport.Basic(cfg.Username, cfg.Password), append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	return &Client{api: api}, nil
}
