package memory

import (
	"context"
	"slices"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/payment"
)

// PaymentRepo implements payment.Repository.
type PaymentRepo struct{ s *Store }

var _ payment.Repository = (*PaymentRepo)(nil)

func (r *PaymentRepo) GetByNumber(_ context.Context, number string) (payment.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.payments[number]
	if !ok {
		return payment.Payment{}, apperror.NewNotFound("payment", number)
	}
	return p, nil
}

func (r *PaymentRepo) ListByInvoice(_ context.Context, invoiceNumber string) ([]payment.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []payment.Payment
	for _, number := range r.s.paymentOrder {
		if p := r.s.payments[number]; p.InvoiceNumber == invoiceNumber {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *PaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.payments[p.Number]; ok {
		return apperror.NewDuplicate("payment", "number", p.Number)
	}
	r.s.payments[p.Number] = *p
	r.s.paymentOrder = append(r.s.paymentOrder, p.Number)

	number := p.Number
	r.s.onRollback(ctx, func() {
		delete(r.s.payments, number)
		r.s.paymentOrder = slices.DeleteFunc(r.s.paymentOrder, func(n string) bool { return n == number })
	})
	return nil
}

func (r *PaymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.payments[p.Number]
	if !ok {
		return apperror.NewNotFound("payment", p.Number)
	}
	if old.Version != p.Version {
		return apperror.NewConcurrentModification("payment", p.Number)
	}
	p.Version++
	r.s.payments[p.Number] = *p
	r.s.onRollback(ctx, func() { r.s.payments[old.Number] = old })
	return nil
}
