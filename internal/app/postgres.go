package app

import (
	"context"
	"fmt"

	"tradeledger/internal/infrastructure/numerator"
	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/internal/infrastructure/storage/postgres/catalog_repo"
	"tradeledger/internal/infrastructure/storage/postgres/document_repo"
	"tradeledger/internal/infrastructure/storage/postgres/ledger_repo"
)

// PostgresStorage wires the PostgreSQL repositories over one transaction
// manager. Strict numbers are allocated inside the caller's transaction.
func PostgresStorage(pool *postgres.Pool, txm *postgres.TxManager) (Storage, error) {
	auditLog, err := postgres.NewAuditLog(txm)
	if err != nil {
		return Storage{}, fmt.Errorf("audit log: %w", err)
	}

	numbers := numerator.New(pool, func(ctx context.Context) numerator.Querier {
		return txm.GetQuerier(ctx)
	})

	return Storage{
		Tx:        txm,
		Invoices:  document_repo.NewInvoiceRepo(txm),
		Payments:  document_repo.NewPaymentRepo(txm),
		Journal:   ledger_repo.NewJournalRepo(txm),
		Chart:     catalog_repo.NewChartRepo(txm),
		Rates:     catalog_repo.NewRateRepo(txm),
		Numerator: numbers,
		Events:    postgres.NewOutboxPublisher(txm),
		Audit:     auditLog,
	}, nil
}
