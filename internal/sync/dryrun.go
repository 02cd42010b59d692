package sync

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/peteski22/churchbridge/internal/church"
)

// dryRunSink logs the records a pass would store instead of handing them to the real sink.
type dryRunSink struct {
	logger *slog.Logger
	pages  atomic.Uint64
}

// newDryRunSink creates a dryRunSink.
func newDryRunSink(logger *slog.Logger) *dryRunSink {
	return &dryRunSink{logger: logger}
}

// Donations logs what would be stored.
func (d *dryRunSink) Donations(_ context.Context, integration church.Integration, records []church.Donation) error {
	total := 0.0
	for _, r := range records {
		total += r.Amount
	}

	d.logger.Info("[DRY-RUN] would store donations",
		"integration_id", integration.ID,
		"page", d.pages.Add(1),
		"count", len(records),
		"total_amount", total)

	return nil
}

// Groups logs what would be stored.
func (d *dryRunSink) Groups(_ context.Context, integration church.Integration, records []church.Group) error {
	d.logger.Info("[DRY-RUN] would store groups",
		"integration_id", integration.ID,
		"page", d.pages.Add(1),
		"count", len(records))

	return nil
}

// People logs what would be stored.
func (d *dryRunSink) People(_ context.Context, integration church.Integration, records []church.Person) error {
	withEmail := 0
	for _, r := range records {
		if r.Email != "" {
			withEmail++
		}
	}

	d.logger.Info("[DRY-RUN] would store people",
		"integration_id", integration.ID,
		"page", d.pages.Add(1),
		"count", len(records),
		"with_email", withEmail)

	return nil
}
