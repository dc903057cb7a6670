package memory

import (
	"context"
	"sort"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/ledger"
)

// ChartRepo implements ledger.ChartRepository.
type ChartRepo struct{ s *Store }

var _ ledger.ChartRepository = (*ChartRepo)(nil)

func (r *ChartRepo) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]ledger.Account(nil), r.s.accounts...), nil
}

// UpsertAccount replaces the row with the same (category, counterparty).
func (r *ChartRepo) UpsertAccount(_ context.Context, a ledger.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i, cur := range r.s.accounts {
		if cur.Category == a.Category && cur.CounterpartyRef == a.CounterpartyRef {
			r.s.accounts[i] = a
			return nil
		}
	}
	r.s.accounts = append(r.s.accounts, a)
	return nil
}

// RateRepo implements currency.Repository.
type RateRepo struct{ s *Store }

var _ currency.Repository = (*RateRepo)(nil)

func (r *RateRepo) Latest(_ context.Context, source, target string, date time.Time) (currency.ExchangeRate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var (
		best  currency.ExchangeRate
		found bool
	)
	for _, row := range r.s.rates {
		if !row.Active || row.Source != source || row.Target != target || row.EffectiveDate.After(date) {
			continue
		}
		if !found || row.EffectiveDate.After(best.EffectiveDate) {
			best, found = row, true
		}
	}
	if !found {
		return currency.ExchangeRate{}, apperror.NewNotFound("exchange rate", source+"/"+target)
	}
	return best, nil
}

func (r *RateRepo) Upsert(_ context.Context, rate currency.ExchangeRate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i, row := range r.s.rates {
		if row.Source == rate.Source && row.Target == rate.Target && row.EffectiveDate.Equal(rate.EffectiveDate) {
			rate.ID = row.ID
			r.s.rates[i] = rate
			return nil
		}
	}
	r.s.rates = append(r.s.rates, rate)
	return nil
}

func (r *RateRepo) List(_ context.Context, f currency.ListFilter) ([]currency.ExchangeRate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []currency.ExchangeRate
	for _, row := range r.s.rates {
		if (f.Source != "" && row.Source != f.Source) ||
			(f.Target != "" && row.Target != f.Target) ||
			(f.ActiveOnly && !row.Active) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveDate.After(out[j].EffectiveDate) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
