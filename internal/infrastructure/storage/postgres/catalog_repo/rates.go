package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/infrastructure/storage/postgres"
)

const ratesTable = "exchange_rates"

var rateColumns = postgres.ExtractDBColumns[currency.ExchangeRate]()

// RateRepo implements currency.Repository.
type RateRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ currency.Repository = (*RateRepo)(nil)

// NewRateRepo creates a new exchange-rate repository.
func NewRateRepo(txm *postgres.TxManager) *RateRepo {
	return &RateRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *RateRepo) Latest(ctx context.Context, source, target string, date time.Time) (currency.ExchangeRate, error) {
	sql, args, err := latestRateQuery(r.builder, source, target, date).ToSql()
	if err != nil {
		return currency.ExchangeRate{}, fmt.Errorf("build query: %w", err)
	}

	var rate currency.ExchangeRate
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rate, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return currency.ExchangeRate{}, apperror.NewNotFound("exchange rate", source+"/"+target)
		}
		return currency.ExchangeRate{}, fmt.Errorf("latest rate %s/%s: %w", source, target, err)
	}
	return rate, nil
}

func latestRateQuery(builder squirrel.StatementBuilderType, source, target string, date time.Time) squirrel.SelectBuilder {
	return builder.
		Select(rateColumns...).
		From(ratesTable).
		Where(squirrel.Eq{
			"source_currency": source,
			"target_currency": target,
			"active":          true,
		}).
		Where(squirrel.LtOrEq{"effective_date": date}).
		OrderBy("effective_date DESC").
		Limit(1)
}

// Upsert replaces the row with the same (source, target, effective date).
func (r *RateRepo) Upsert(ctx context.Context, rate currency.ExchangeRate) error {
	if id.IsNil(rate.ID) {
		rate.ID = id.New()
	}
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = time.Now().UTC()
	}

	sql, args, err := r.builder.
		Insert(ratesTable).
		SetMap(postgres.Pick(rate, rateColumns...)).
		Suffix("ON CONFLICT (source_currency, target_currency, effective_date) DO UPDATE SET " +
			"rate = EXCLUDED.rate, active = EXCLUDED.active").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert rate %s/%s: %w", rate.Source, rate.Target, err)
	}
	return nil
}

func (r *RateRepo) List(ctx context.Context, f currency.ListFilter) ([]currency.ExchangeRate, error) {
	sql, args, err := listRatesQuery(r.builder, f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []currency.ExchangeRate
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	return out, nil
}

func listRatesQuery(builder squirrel.StatementBuilderType, f currency.ListFilter) squirrel.SelectBuilder {
	q := builder.Select(rateColumns...).From(ratesTable)
	if f.Source != "" {
		q = q.Where(squirrel.Eq{"source_currency": f.Source})
	}
	if f.Target != "" {
		q = q.Where(squirrel.Eq{"target_currency": f.Target})
	}
	if f.ActiveOnly {
		q = q.Where(squirrel.Eq{"active": true})
	}
	q = q.OrderBy("effective_date DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}
