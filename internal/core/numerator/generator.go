package numerator

import (
	"context"
	"time"
)

// Generator hands out invoice, payment and journal entry numbers. Both the
// postgres counter table and the memory store implement it.
type Generator interface {
	// GetNextNumber returns the next number of cfg's sequence for the
	// period containing at. With StrategyStrict the number belongs to the
	// caller's transaction.
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, at time.Time) (string, error)

	// SetNextNumber moves a sequence so that numbering continues after
	// documents imported from a previous system.
	SetNextNumber(ctx context.Context, cfg Config, at time.Time, value int64) error
}
