package sync

import (
	"context"

	"github.com/peteski22/churchbridge/internal/church"
)

// DiscardSink accepts and drops every record.
type DiscardSink struct{}

// Sink receives each page of canonical records. Persistence is owned by the caller.
type Sink interface {
	// Donations stores a page of donations.
	Donations(ctx context.Context, integration church.Integration, records []church.Donation) error

	// Groups stores a page of groups.
	Groups(ctx context.Context, integration church.Integration, records []church.Group) error

	// People stores a page of people.
	People(ctx context.Context, integration church.Integration, records []church.Person) error
}

// Donations implements Sink.
func (DiscardSink) Donations(context.Context, church.Integration, []church.Donation) error { return nil }

// Groups implements Sink.
func (DiscardSink) Groups(context.Context, church.Integration, []church.Group) error { return nil }

// People implements Sink.
func (DiscardSink) People(context.Context, church.Integration, []church.Person) error { return nil }
