// Package document_repo provides PostgreSQL repositories for invoices and
// payments.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/infrastructure/storage/postgres"
)

// immutableColumns are never written by an update.
var immutableColumns = map[string]bool{
	"id":         true,
	"number":     true,
	"created_at": true,
	"created_by": true,
	"version":    true,
}

// BaseDocumentRepo holds the header CRUD shared by numbered documents.
type BaseDocumentRepo[T any] struct {
	txm        *postgres.TxManager
	tableName  string
	entity     string
	selectCols []string
}

// NewBaseDocumentRepo creates a base repository for table, mapping the
// db-tagged columns of T.
func NewBaseDocumentRepo[T any](txm *postgres.TxManager, tableName, entity string) *BaseDocumentRepo[T] {
	return &BaseDocumentRepo[T]{
		txm:        txm,
		tableName:  tableName,
		entity:     entity,
		selectCols: postgres.ExtractDBColumns[T](),
	}
}

// Builder returns a new squirrel builder.
func (r *BaseDocumentRepo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseDocumentRepo[T]) querier(ctx context.Context) postgres.Querier {
	return r.txm.GetQuerier(ctx)
}

func (r *BaseDocumentRepo[T]) baseSelect() squirrel.SelectBuilder {
	return r.Builder().Select(r.selectCols...).From(r.tableName)
}

// insertQuery builds the INSERT of every mapped column of doc.
func (r *BaseDocumentRepo[T]) insertQuery(doc *T) squirrel.InsertBuilder {
	data := postgres.Pick(doc, r.selectCols...)
	return r.Builder().Insert(r.tableName).SetMap(data)
}

// updateQuery builds the optimistic UPDATE of doc read at version.
func (r *BaseDocumentRepo[T]) updateQuery(doc *T, docID id.ID, version int) squirrel.UpdateBuilder {
	data := postgres.StructToMap(doc)
	set := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if immutableColumns[col] {
			continue
		}
		if v, ok := data[col]; ok {
			set[col] = v
		}
	}
	return r.Builder().
		Update(r.tableName).
		SetMap(set).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": docID, "version": version})
}

// create inserts doc. A unique violation on number is reported as a
// duplicate.
func (r *BaseDocumentRepo[T]) create(ctx context.Context, doc *T, number string) error {
	sql, args, err := r.insertQuery(doc).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate(r.entity, "number", number)
		}
		return fmt.Errorf("insert %s: %w", r.tableName, err)
	}
	return nil
}

// update writes doc if the stored version still equals version.
func (r *BaseDocumentRepo[T]) update(ctx context.Context, doc *T, docID id.ID, number string, version int) error {
	sql, args, err := r.updateQuery(doc, docID, version).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.tableName, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(r.entity, number)
	}
	return nil
}

// getByNumber loads the header with the given number.
func (r *BaseDocumentRepo[T]) getByNumber(ctx context.Context, number string) (T, error) {
	var doc T
	sql, args, err := r.baseSelect().Where(squirrel.Eq{"number": number}).ToSql()
	if err != nil {
		return doc, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.querier(ctx), &doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return doc, apperror.NewNotFound(r.entity, number)
		}
		return doc, fmt.Errorf("get %s %s: %w", r.entity, number, err)
	}
	return doc, nil
}

// page counts the rows of q and returns one page of them.
func (r *BaseDocumentRepo[T]) page(ctx context.Context, q squirrel.SelectBuilder, orderBy string, limit, offset int) ([]T, int64, error) {
	countSQL, countArgs, err := r.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := r.querier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.tableName, err)
	}

	q = q.OrderBy(orderBy)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var items []T
	if err := pgxscan.Select(ctx, r.querier(ctx), &items, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.tableName, err)
	}
	return items, total, nil
}
