// Package catalog_repo provides PostgreSQL repositories for the reference
// data the ledger reads: the account mapping and the exchange-rate table.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tradeledger/internal/core/id"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/infrastructure/storage/postgres"
)

const accountsTable = "accounts"

var accountColumns = postgres.ExtractDBColumns[ledger.Account]()

// ChartRepo implements ledger.ChartRepository.
type ChartRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ ledger.ChartRepository = (*ChartRepo)(nil)

// NewChartRepo creates a new chart repository.
func NewChartRepo(txm *postgres.TxManager) *ChartRepo {
	return &ChartRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListAccounts returns every mapping row, inactive ones included.
func (r *ChartRepo) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	sql, args, err := r.builder.
		Select(accountColumns...).
		From(accountsTable).
		OrderBy("category", "counterparty_ref").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []ledger.Account
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

// UpsertAccount replaces the row with the same (category, counterparty).
func (r *ChartRepo) UpsertAccount(ctx context.Context, a ledger.Account) error {
	sql, args, err := upsertAccountQuery(r.builder, a).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert account %s: %w", a.Category, err)
	}
	return nil
}

func upsertAccountQuery(builder squirrel.StatementBuilderType, a ledger.Account) squirrel.InsertBuilder {
	if id.IsNil(a.ID) {
		a.ID = id.Derive("account", string(a.Category), a.CounterpartyRef)
	}
	return builder.
		Insert(accountsTable).
		SetMap(postgres.Pick(a, accountColumns...)).
		Suffix("ON CONFLICT (category, counterparty_ref) DO UPDATE SET " +
			"account_code = EXCLUDED.account_code, label = EXCLUDED.label, active = EXCLUDED.active")
}
