package memory

import (
	"context"
	"sort"
	"strings"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/invoice"
)

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct{ s *Store }

var _ invoice.Repository = (*InvoiceRepo)(nil)

func copyInvoice(r invoice.Record) invoice.Record {
	r.Lines = append([]invoice.Line(nil), r.Lines...)
	return r
}

func (r *InvoiceRepo) GetByNumber(_ context.Context, number string) (invoice.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.invoices[number]
	if !ok {
		return invoice.Record{}, apperror.NewNotFound("invoice", number)
	}
	return copyInvoice(rec), nil
}

func (r *InvoiceRepo) Create(ctx context.Context, rec *invoice.Record) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.invoices[rec.Number]; ok {
		return apperror.NewDuplicate("invoice", "number", rec.Number)
	}
	r.s.invoices[rec.Number] = copyInvoice(*rec)
	number := rec.Number
	r.s.onRollback(ctx, func() { delete(r.s.invoices, number) })
	return nil
}

func (r *InvoiceRepo) Update(ctx context.Context, rec *invoice.Record) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.invoices[rec.Number]
	if !ok {
		return apperror.NewNotFound("invoice", rec.Number)
	}
	if old.Version != rec.Version {
		return apperror.NewConcurrentModification("invoice", rec.Number)
	}
	rec.Version++

	next := copyInvoice(*rec)
	next.Lines = old.Lines
	r.s.invoices[rec.Number] = next
	r.s.onRollback(ctx, func() { r.s.invoices[old.Number] = old })
	return nil
}

func (r *InvoiceRepo) SaveLines(ctx context.Context, invoiceID id.ID, lines []invoice.Line) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for number, rec := range r.s.invoices {
		if rec.ID != invoiceID {
			continue
		}
		old := rec
		rec.Lines = append([]invoice.Line(nil), lines...)
		r.s.invoices[number] = rec
		r.s.onRollback(ctx, func() { r.s.invoices[old.Number] = old })
		return nil
	}
	return apperror.NewNotFound("invoice", invoiceID.String())
}

func (r *InvoiceRepo) List(_ context.Context, f invoice.ListFilter) (domain.ListResult[invoice.Record], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var items []invoice.Record
	for _, rec := range r.s.invoices {
		if matches(rec, f) {
			items = append(items, copyInvoice(rec))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		return items[i].Number > items[j].Number
	})

	page := domain.Page{Limit: f.Limit, Offset: f.Offset}.Normalize()
	total := len(items)
	start := min(page.Offset, total)
	end := min(start+page.Limit, total)

	return domain.ListResult[invoice.Record]{
		Items:      items[start:end],
		TotalCount: int64(total),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}, nil
}

func matches(rec invoice.Record, f invoice.ListFilter) bool {
	switch {
	case f.Direction != "" && rec.Direction != f.Direction:
		return false
	case f.Type != "" && rec.Type != f.Type:
		return false
	case f.Status != "" && rec.Status != f.Status:
		return false
	case f.CounterpartyRef != "" && rec.CounterpartyRef != f.CounterpartyRef:
		return false
	case f.Settled != nil && (rec.SettledAt != nil) != *f.Settled:
		return false
	case f.DateFrom != nil && rec.Date.Before(*f.DateFrom):
		return false
	case f.DateTo != nil && rec.Date.After(*f.DateTo):
		return false
	case f.Search != "" && !strings.Contains(strings.ToLower(rec.Number+" "+rec.Notes), strings.ToLower(f.Search)):
		return false
	}
	return true
}
