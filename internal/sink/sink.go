package sink

import (
	"context"
	"errors"

	"github.com/user/listing-harvester/internal/domain"
)

// Sink persists the rows of completed pages. Append may be called
// concurrently; each call writes one page as a contiguous block.
type Sink interface {
	Prepare(ctx context.Context) error
	Append(ctx context.Context, page int, rows []domain.ListingRecord) error
	Close() error
}

// Mirrored writes every page to Primary and then copies it to Mirror.
// Only Primary decides whether a page was persisted: mirror failures are
// reported to OnMirrorError and never returned.
type Mirrored struct {
	Primary       Sink
	Mirror        Sink
	OnMirrorError func(page int, err error)

	// set by Prepare, read-only afterwards
	mirrorDown bool
}

// Prepare fails only when Primary does. A mirror that cannot be prepared
// is skipped for the rest of the run; its error is reported with page 0.
func (m *Mirrored) Prepare(ctx context.Context) error {
	if err := m.Primary.Prepare(ctx); err != nil {
		return err
	}
	if err := m.Mirror.Prepare(ctx); err != nil {
		m.mirrorDown = true
		m.report(0, err)
	}
	return nil
}

func (m *Mirrored) Append(ctx context.Context, page int, rows []domain.ListingRecord) error {
	if err := m.Primary.Append(ctx, page, rows); err != nil {
		return err
	}
	if m.mirrorDown {
		return nil
	}
	if err := m.Mirror.Append(ctx, page, rows); err != nil {
		m.report(page, err)
	}
	return nil
}

// Close closes both sinks and joins their errors.
func (m *Mirrored) Close() error {
	return errors.Join(m.Primary.Close(), m.Mirror.Close())
}

func (m *Mirrored) report(page int, err error) {
	if m.OnMirrorError != nil {
		m.OnMirrorError(page, err)
	}
}
