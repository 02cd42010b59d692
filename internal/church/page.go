package church

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// defaultMaxPages bounds FetchAll when the caller sets no limit.
const defaultMaxPages = 10_000

// ErrRepeatedCursor is returned when a provider hands back a cursor it already returned.
var ErrRepeatedCursor = errors.New("provider returned a repeated page cursor")

// ListParams holds the parameters for one page request.
type ListParams struct {
	// Limit is the requested page size; zero uses the adapter default.
	Limit int

	// ModifiedSince restricts results to records changed after this time, when non-zero.
	ModifiedSince time.Time

	// PageToken is the opaque cursor returned by the previous page.
	PageToken string
}

// Page is one page of records returned by an adapter.
type Page[T any] struct {
	// Count is the number of records in Data.
	Count int

	// Data holds the decoded records.
	Data []T

	// HasMore indicates another page is available via NextPageToken.
	HasMore bool

	// NextPageToken is the cursor for the next page; empty when HasMore is false.
	NextPageToken string

	// Skipped counts records on this page that could not be decoded.
	Skipped int
}

// NewPage builds a Page whose HasMore flag is derived from the presence of a next cursor,
// so a page can never claim more results without a usable token.
func NewPage[T any](data []T, nextPageToken string, skipped int) *Page[T] {
	return &Page[T]{
		Count:         len(data),
		Data:          data,
		HasMore:       nextPageToken != "",
		NextPageToken: nextPageToken,
		Skipped:       skipped,
	}
}

// PageFunc fetches a single page.
type PageFunc[T any] func(ctx context.Context, params ListParams) (*Page[T], error)

// FetchAll walks every page in cursor order, calling visit for each one.
// It stops on the first error; pages already visited stay visited.
func FetchAll[T any](
	ctx context.Context,
	fetch PageFunc[T],
	params ListParams,
	maxPages int,
	visit func(page *Page[T]) error,
) error {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	seen := make(map[string]struct{})

	for n := 0; n < maxPages; n++ {
		page, err := fetch(ctx, params)
		if err != nil {
			return fmt.Errorf("fetching page %d: %w", n+1, err)
		}
		if page == nil {
			return fmt.Errorf("fetching page %d: adapter returned no page", n+1)
		}

		if err := visit(page); err != nil {
			return err
		}

		if !page.HasMore {
			return nil
		}
		if page.NextPageToken == "" {
			return fmt.Errorf("page %d reports more results without a cursor", n+1)
		}
		if _, ok := seen[page.NextPageToken]; ok {
			return fmt.Errorf("page %d: %w: %s", n+1, ErrRepeatedCursor, page.NextPageToken)
		}
		seen[page.NextPageToken] = struct{}{}
		params.PageToken = page.NextPageToken
	}

	return fmt.Errorf("exceeded %d pages", maxPages)
}
