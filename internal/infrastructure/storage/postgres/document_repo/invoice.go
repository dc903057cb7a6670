package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tradeledger/internal/core/id"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/infrastructure/storage/postgres"
)

const (
	invoicesTable     = "invoices"
	invoiceLinesTable = "invoice_lines"
)

var lineColumns = postgres.ExtractDBColumns[invoice.Line]()

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct {
	*BaseDocumentRepo[invoice.Record]
}

var _ invoice.Repository = (*InvoiceRepo)(nil)

// NewInvoiceRepo creates a new invoice repository.
func NewInvoiceRepo(txm *postgres.TxManager) *InvoiceRepo {
	return &InvoiceRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[invoice.Record](txm, invoicesTable, "invoice"),
	}
}

// GetByNumber loads the header and its lines.
func (r *InvoiceRepo) GetByNumber(ctx context.Context, number string) (invoice.Record, error) {
	rec, err := r.getByNumber(ctx, number)
	if err != nil {
		return invoice.Record{}, err
	}
	if rec.Lines, err = r.lines(ctx, rec.ID); err != nil {
		return invoice.Record{}, err
	}
	return rec, nil
}

func (r *InvoiceRepo) lines(ctx context.Context, invoiceID id.ID) ([]invoice.Line, error) {
	sql, args, err := r.Builder().
		Select(lineColumns...).
		From(invoiceLinesTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []invoice.Line
	if err := pgxscan.Select(ctx, r.querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	return lines, nil
}

func (r *InvoiceRepo) Create(ctx context.Context, rec *invoice.Record) error {
	return r.create(ctx, rec, rec.Number)
}

func (r *InvoiceRepo) Update(ctx context.Context, rec *invoice.Record) error {
	if err := r.update(ctx, rec, rec.ID, rec.Number, rec.Version); err != nil {
		return err
	}
	rec.Version++
	return nil
}

// SaveLines replaces the lines of an invoice (delete + insert).
func (r *InvoiceRepo) SaveLines(ctx context.Context, invoiceID id.ID, lines []invoice.Line) error {
	sql, args, err := r.Builder().Delete(invoiceLinesTable).Where(squirrel.Eq{"invoice_id": invoiceID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete lines: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	sql, args, err = insertLinesQuery(r.Builder(), invoiceID, lines).ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

func insertLinesQuery(b squirrel.StatementBuilderType, invoiceID id.ID, lines []invoice.Line) squirrel.InsertBuilder {
	q := b.Insert(invoiceLinesTable).Columns(append([]string{"invoice_id"}, lineColumns...)...)
	for _, l := range lines {
		q = q.Values(
			invoiceID, l.LineID, l.LineNo, l.ArticleRef, l.Description,
			l.Quantity, l.UnitPrice, l.TaxRate, l.DiscountRate,
			l.AmountHT, l.AmountTax, l.AmountTTC,
		)
	}
	return q
}

// List returns headers only; Lines stay empty.
func (r *InvoiceRepo) List(ctx context.Context, f invoice.ListFilter) (domain.ListResult[invoice.Record], error) {
	items, total, err := r.page(ctx, r.filtered(f), "doc_date DESC, number DESC", f.Limit, f.Offset)
	if err != nil {
		return domain.ListResult[invoice.Record]{}, err
	}
	return domain.ListResult[invoice.Record]{
		Items:      items,
		TotalCount: total,
		Limit:      f.Limit,
		Offset:     f.Offset,
	}, nil
}

func (r *InvoiceRepo) filtered(f invoice.ListFilter) squirrel.SelectBuilder {
	q := r.baseSelect()
	if f.Direction != "" {
		q = q.Where(squirrel.Eq{"direction": f.Direction})
	}
	if f.Type != "" {
		q = q.Where(squirrel.Eq{"doc_type": f.Type})
	}
	if f.Status != "" {
		q = q.Where(squirrel.Eq{"status": f.Status})
	}
	if f.CounterpartyRef != "" {
		q = q.Where(squirrel.Eq{"counterparty_ref": f.CounterpartyRef})
	}
	if f.Settled != nil {
		if *f.Settled {
			q = q.Where(squirrel.NotEq{"settled_at": nil})
		} else {
			q = q.Where(squirrel.Eq{"settled_at": nil})
		}
	}
	if f.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"doc_date": *f.DateFrom})
	}
	if f.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"doc_date": *f.DateTo})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"number": pattern},
			squirrel.ILike{"counterparty_ref": pattern},
		})
	}
	return q
}
