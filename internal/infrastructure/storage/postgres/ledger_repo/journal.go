// Package ledger_repo provides the PostgreSQL journal store. Batches and
// entries are insert-only.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/infrastructure/storage/postgres"
)

const (
	batchesTable = "journal_batches"
	entriesTable = "journal_entries"
)

var (
	batchColumns = postgres.ExtractDBColumns[ledger.Batch]()
	entryColumns = postgres.ExtractDBColumns[ledger.Entry]()
)

// JournalRepo implements ledger.Repository.
type JournalRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ ledger.Repository = (*JournalRepo)(nil)

// NewJournalRepo creates a new journal repository.
func NewJournalRepo(txm *postgres.TxManager) *JournalRepo {
	return &JournalRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *JournalRepo) FindBatch(ctx context.Context, reference string, kind ledger.BatchKind) (ledger.Batch, error) {
	sql, args, err := r.builder.
		Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"reference": reference, "kind": kind}).
		ToSql()
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("build query: %w", err)
	}

	q := r.txm.GetQuerier(ctx)
	var b ledger.Batch
	if err := pgxscan.Get(ctx, q, &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ledger.Batch{}, apperror.NewNotFound("journal batch", reference+"/"+string(kind))
		}
		return ledger.Batch{}, fmt.Errorf("get batch %s/%s: %w", reference, kind, err)
	}

	sql, args, err = r.builder.
		Select(entryColumns...).
		From(entriesTable).
		Where(squirrel.Eq{"batch_id": b.ID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return ledger.Batch{}, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, q, &b.Entries, sql, args...); err != nil {
		return ledger.Batch{}, fmt.Errorf("get entries of %s/%s: %w", reference, kind, err)
	}
	return b, nil
}

// InsertBatch writes the header with ON CONFLICT DO NOTHING; entries are
// only written when the header row was new.
func (r *JournalRepo) InsertBatch(ctx context.Context, b *ledger.Batch) (bool, error) {
	sql, args, err := insertBatchQuery(r.builder, b).ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert batch: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert batch %s/%s: %w", b.Reference, b.Kind, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := r.insertEntries(ctx, b.Entries); err != nil {
		return false, err
	}
	return true, nil
}

func insertBatchQuery(builder squirrel.StatementBuilderType, b *ledger.Batch) squirrel.InsertBuilder {
	return builder.
		Insert(batchesTable).
		SetMap(postgres.Pick(b, batchColumns...)).
		Suffix("ON CONFLICT (reference, kind) DO NOTHING")
}

func entryRow(e ledger.Entry) []any {
	return []any{
		e.LineID, e.BatchID, e.Period, e.CreatedAt,
		e.EntryNumber, e.LineNo, e.Journal, e.Account, e.Label,
		e.Debit, e.Credit, e.Currency, e.ExchangeRate, e.Reference,
	}
}

// copyThreshold is the batch size from which entries go through COPY.
const copyThreshold = 8

func (r *JournalRepo) insertEntries(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	if len(entries) >= copyThreshold && r.txm.GetTx(ctx) != nil {
		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, entryRow(e))
		}
		return postgres.NewBatchInserter(r.txm).CopyRows(ctx, entriesTable, entryColumns, rows)
	}

	q := r.builder.Insert(entriesTable).Columns(entryColumns...)
	for _, e := range entries {
		q = q.Values(entryRow(e)...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert entries: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert entries: %w", err)
	}
	return nil
}

func (r *JournalRepo) EntriesByReference(ctx context.Context, reference string) ([]ledger.Entry, error) {
	cols := make([]string, len(entryColumns))
	for i, c := range entryColumns {
		cols[i] = "e." + c
	}
	sql, args, err := r.builder.
		Select(cols...).
		From(entriesTable + " e").
		Join(batchesTable + " b ON b.id = e.batch_id").
		Where(squirrel.Eq{"e.reference": reference}).
		OrderBy("b.created_at", "e.line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []ledger.Entry
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("entries of %s: %w", reference, err)
	}
	return out, nil
}

// BatchTotals re-sums the stored entries; the header totals are not
// trusted.
func (r *JournalRepo) BatchTotals(ctx context.Context, from, to time.Time) ([]ledger.BatchTotal, error) {
	sql, args, err := batchTotalsQuery(r.builder, from, to).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []ledger.BatchTotal
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("batch totals: %w", err)
	}
	return out, nil
}

func batchTotalsQuery(builder squirrel.StatementBuilderType, from, to time.Time) squirrel.SelectBuilder {
	return builder.
		Select(
			"b.id AS batch_id",
			"b.reference",
			"b.kind",
			"b.entry_date",
			"COUNT(e.line_id) AS lines",
			"COALESCE(SUM(e.debit), 0) AS debit",
			"COALESCE(SUM(e.credit), 0) AS credit",
		).
		From(batchesTable + " b").
		LeftJoin(entriesTable + " e ON e.batch_id = b.id").
		Where(squirrel.GtOrEq{"b.entry_date": from}).
		Where(squirrel.LtOrEq{"b.entry_date": to}).
		GroupBy("b.id", "b.reference", "b.kind", "b.entry_date", "b.created_at").
		OrderBy("b.entry_date", "b.created_at")
}
