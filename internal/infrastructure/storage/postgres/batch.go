package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchInserter writes many rows at once with COPY. Journal batches use it
// once they grow past a handful of lines.
type BatchInserter struct {
	txManager *TxManager
}

func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyRows copies rows into table. COPY bypasses ON CONFLICT, so it is only
// allowed inside a transaction whose caller already owns the rows' batch.
func (b *BatchInserter) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	t := b.txManager.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("copy into %s: %w", table, ErrNoTransaction)
	}
	n, err := t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", table, err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", table, n, len(rows))
	}
	return nil
}
