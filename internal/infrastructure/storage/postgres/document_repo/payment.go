package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tradeledger/internal/domain/payment"
	"tradeledger/internal/infrastructure/storage/postgres"
)

const paymentsTable = "payments"

// PaymentRepo implements payment.Repository.
type PaymentRepo struct {
	*BaseDocumentRepo[payment.Payment]
}

var _ payment.Repository = (*PaymentRepo)(nil)

// NewPaymentRepo creates a new payment repository.
func NewPaymentRepo(txm *postgres.TxManager) *PaymentRepo {
	return &PaymentRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[payment.Payment](txm, paymentsTable, "payment"),
	}
}

func (r *PaymentRepo) GetByNumber(ctx context.Context, number string) (payment.Payment, error) {
	return r.getByNumber(ctx, number)
}

func (r *PaymentRepo) ListByInvoice(ctx context.Context, invoiceNumber string) ([]payment.Payment, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"invoice_number": invoiceNumber}).
		OrderBy("created_at", "number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []payment.Payment
	if err := pgxscan.Select(ctx, r.querier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list payments of %s: %w", invoiceNumber, err)
	}
	return out, nil
}

func (r *PaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	return r.create(ctx, p, p.Number)
}

func (r *PaymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	if err := r.update(ctx, p, p.ID, p.Number, p.Version); err != nil {
		return err
	}
	p.Version++
	return nil
}
