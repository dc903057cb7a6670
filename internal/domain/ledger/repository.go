package ledger

import (
	"context"
	"time"
)

// Repository stores journal batches. Rows are never updated or deleted.
type Repository interface {
	// FindBatch returns the batch (reference, kind) with its entries, or
	// NOT_FOUND.
	FindBatch(ctx context.Context, reference string, kind BatchKind) (Batch, error)

	// InsertBatch writes the batch header and its entries. When a batch
	// with the same (reference, kind) exists, nothing is written and
	// inserted is false.
	InsertBatch(ctx context.Context, batch *Batch) (inserted bool, err error)

	// EntriesByReference returns every entry carrying reference, ordered
	// by batch creation then line number.
	EntriesByReference(ctx context.Context, reference string) ([]Entry, error)

	// BatchTotals sums the entries of each batch dated within [from, to].
	BatchTotals(ctx context.Context, from, to time.Time) ([]BatchTotal, error)
}

// ChartRepository reads and maintains the account mapping.
type ChartRepository interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	UpsertAccount(ctx context.Context, account Account) error
}
