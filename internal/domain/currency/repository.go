package currency

import (
	"context"
	"time"
)

// Repository reads and writes the rate table.
type Repository interface {
	// Latest returns the most recent active row for (source, target) whose
	// effective date is on or before date. Returns a NOT_FOUND AppError
	// when there is none.
	Latest(ctx context.Context, source, target string, date time.Time) (ExchangeRate, error)

	// Upsert inserts a row or replaces the one with the same
	// (source, target, effective date).
	Upsert(ctx context.Context, rate ExchangeRate) error

	List(ctx context.Context, filter ListFilter) ([]ExchangeRate, error)
}

// Cache stores resolved quotes. Implementations must be safe for
// concurrent use; a nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, from, to string, date time.Time) (Quote, bool, error)
	Set(ctx context.Context, date time.Time, q Quote) error
	// InvalidatePair drops every cached quote of the pair in both directions.
	InvalidatePair(ctx context.Context, a, b string) error
}
