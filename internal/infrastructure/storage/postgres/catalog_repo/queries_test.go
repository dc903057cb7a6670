package catalog_repo

import (
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/id"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/ledger"
)

var testBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func TestLatestRateQuery(t *testing.T) {
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	sql, args, err := latestRateQuery(testBuilder, "EUR", "XOF", date).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM exchange_rates")
	assert.Contains(t, sql, "effective_date <= $4")
	assert.Contains(t, sql, "ORDER BY effective_date DESC LIMIT 1")
	// squirrel sorts Eq keys.
	assert.Equal(t, []any{true, "EUR", "XOF", date}, args)
}

func TestListRatesQuery(t *testing.T) {
	tests := []struct {
		name   string
		filter currency.ListFilter
		want   []string
		absent []string
	}{
		{
			name:   "no filter",
			want:   []string{"ORDER BY effective_date DESC"},
			absent: []string{"WHERE", "LIMIT"},
		},
		{
			name:   "pair, active, limit",
			filter: currency.ListFilter{Source: "EUR", Target: "XOF", ActiveOnly: true, Limit: 5},
			want:   []string{"source_currency = $1", "target_currency = $2", "active = $3", "LIMIT 5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _, err := listRatesQuery(testBuilder, tt.filter).ToSql()
			require.NoError(t, err)
			for _, s := range tt.want {
				assert.Contains(t, sql, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, sql, s)
			}
		})
	}
}

func TestUpsertAccountQuery_DerivesStableID(t *testing.T) {
	a := ledger.Account{Category: ledger.CategoryReceivable, CounterpartyRef: "CLI-1", Code: "411001", Active: true}

	sql, args, err := upsertAccountQuery(testBuilder, a).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO accounts")
	assert.Contains(t, sql, "ON CONFLICT (category, counterparty_ref) DO UPDATE")
	assert.Contains(t, args, id.Derive("account", "receivable", "CLI-1"))
}
