package payment

import "context"

// Repository persists payments.
type Repository interface {
	// GetByNumber returns the payment or NOT_FOUND.
	GetByNumber(ctx context.Context, number string) (Payment, error)

	// ListByInvoice returns the payments of an invoice in recording order.
	ListByInvoice(ctx context.Context, invoiceNumber string) ([]Payment, error)

	Create(ctx context.Context, p *Payment) error

	// Update writes the status fields if p.Version matches and bumps it.
	Update(ctx context.Context, p *Payment) error
}
