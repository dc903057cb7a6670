package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradeledger/internal/app"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/ledger"
)

func newSeedCmd(load configLoader) *cobra.Command {
	var rates []string
	var skipChart bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the default chart of accounts and exchange rates",
		Example: `  ledgerctl seed
  ledgerctl seed --rate EUR:XOF:655.957:2024-01-01 --rate USD:XOF:600.5:2024-03-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed := make([]currency.ExchangeRate, 0, len(rates))
			for _, spec := range rates {
				r, err := parseRateSpec(spec)
				if err != nil {
					return err
				}
				parsed = append(parsed, r)
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			svc, closeFn, err := openServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			accounts, stored, err := seed(cmd.Context(), svc, !skipChart, parsed)
			if err != nil {
				return err
			}
			cmd.Printf("seeded %d accounts and %d exchange rates\n", accounts, stored)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&rates, "rate", nil, "exchange rate SOURCE:TARGET:RATE:YYYY-MM-DD (repeatable)")
	cmd.Flags().BoolVar(&skipChart, "skip-chart", false, "do not load the default chart of accounts")
	return cmd
}

func seed(ctx context.Context, svc *app.Services, chart bool, rates []currency.ExchangeRate) (int, int, error) {
	accounts := 0
	if chart {
		for _, a := range ledger.DefaultAccounts() {
			if err := svc.Ledger.UpsertAccount(ctx, a); err != nil {
				return accounts, 0, fmt.Errorf("account %s: %w", a.Code, err)
			}
			accounts++
		}
	}
	for i, r := range rates {
		if _, err := svc.Currency.UpsertRate(ctx, r); err != nil {
			return accounts, i, fmt.Errorf("rate %s/%s: %w", r.Source, r.Target, err)
		}
	}
	return accounts, len(rates), nil
}

// parseRateSpec parses SOURCE:TARGET:RATE[:YYYY-MM-DD]. The date defaults
// to today.
func parseRateSpec(spec string) (currency.ExchangeRate, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return currency.ExchangeRate{}, fmt.Errorf("invalid rate %q: want SOURCE:TARGET:RATE[:YYYY-MM-DD]", spec)
	}
	rate, err := decimal.NewFromString(parts[2])
	if err != nil {
		return currency.ExchangeRate{}, fmt.Errorf("invalid rate %q: %w", spec, err)
	}
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if len(parts) == 4 {
		if date, err = time.Parse(time.DateOnly, parts[3]); err != nil {
			return currency.ExchangeRate{}, fmt.Errorf("invalid rate date %q: %w", spec, err)
		}
	}
	return currency.ExchangeRate{
		Source:        parts[0],
		Target:        parts[1],
		Rate:          rate,
		EffectiveDate: date,
		Active:        true,
	}, nil
}
