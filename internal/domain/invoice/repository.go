package invoice

import (
	"context"

	"tradeledger/internal/core/id"
	"tradeledger/internal/domain"
)

// Reader loads invoices. Other domains depend on this narrow view.
type Reader interface {
	// GetByNumber returns the invoice with its lines, or NOT_FOUND.
	GetByNumber(ctx context.Context, number string) (Record, error)
}

// Repository persists invoices.
type Repository interface {
	Reader

	// Create inserts the header. The record must carry its number.
	Create(ctx context.Context, rec *Record) error

	// Update writes the header if rec.Version matches the stored version
	// and bumps it; otherwise CONCURRENT_MODIFICATION.
	Update(ctx context.Context, rec *Record) error

	// SaveLines replaces the lines of an invoice.
	SaveLines(ctx context.Context, invoiceID id.ID, lines []Line) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[Record], error)
}
