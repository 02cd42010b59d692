package church

import (
	"context"
	"errors"
)

// ErrInvalidCredentials is returned when a provider rejects the configured credentials.
// It is never retried.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUnknownProvider is returned when no adapter is registered for a provider.
var ErrUnknownProvider = errors.New("unknown provider")

// Adapter reads one provider's records and normalizes them into canonical entities.
type Adapter interface {
	// Donations returns one page of donations.
	Donations(ctx context.Context, params ListParams) (*Page[Donation], error)

	// Groups returns one page of groups.
	Groups(ctx context.Context, params ListParams) (*Page[Group], error)

	// People returns one page of people.
	People(ctx context.Context, params ListParams) (*Page[Person], error)

	// Provider identifies the provider this adapter talks to.
	Provider() Provider

	// ValidateCredentials performs one cheap authenticated call.
	// It returns false with an error wrapping ErrInvalidCredentials on a 401-class response.
	ValidateCredentials(ctx context.Context) (bool, error)
}

// StatusChecker is implemented by adapters whose provider exposes a live status endpoint.
type StatusChecker interface {
	// CheckStatus returns nil when the provider reports itself healthy.
	CheckStatus(ctx context.Context) error
}
