package memory

import (
	"context"
	"time"

	"tradeledger/internal/core/numerator"
)

// Numerator implements numerator.Generator over an in-memory counter
// table. Every strategy behaves as strict: a rolled back transaction gives
// its numbers back.
type Numerator struct{ s *Store }

var _ numerator.Generator = (*Numerator)(nil)

func (n *Numerator) GetNextNumber(ctx context.Context, cfg numerator.Config, _ *numerator.Options, period time.Time) (string, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()

	key := numerator.Key(cfg, period)
	n.s.sequences[key]++
	val := n.s.sequences[key]
	n.s.onRollback(ctx, func() {
		if n.s.sequences[key] == val {
			n.s.sequences[key] = val - 1
		}
	})
	return numerator.Format(cfg, period, val), nil
}

func (n *Numerator) SetNextNumber(_ context.Context, cfg numerator.Config, period time.Time, value int64) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	n.s.sequences[numerator.Key(cfg, period)] = value
	return nil
}
