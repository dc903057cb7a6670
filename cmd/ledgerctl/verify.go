package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradeledger/internal/domain/ledger"
)

func newVerifyCmd(load configLoader) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-sum journal batches and report unbalanced ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := verifyRange(from, to, time.Now().UTC())
			if err != nil {
				return err
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

			report, err := svc.Ledger.VerifyBalance(cmd.Context(), start, end)
			printReport(cmd, report)
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first entry date (YYYY-MM-DD), default: 1st of the current year")
	cmd.Flags().StringVar(&to, "to", "", "last entry date (YYYY-MM-DD), default: today")
	return cmd
}

func verifyRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	end := now
	var err error
	if from != "" {
		if start, err = time.Parse(time.DateOnly, from); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if to != "" {
		if end, err = time.Parse(time.DateOnly, to); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s is after --to %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return start, end, nil
}

func printReport(cmd *cobra.Command, r ledger.VerifyReport) {
	cmd.Printf("checked %d batches from %s to %s\n", r.Batches, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	for _, t := range r.Unbalanced {
		cmd.Printf("  UNBALANCED %s/%s on %s: debit %s credit %s\n",
			t.Reference, t.Kind, t.Date.Format(time.DateOnly), t.Debit.StringFixed(2), t.Credit.StringFixed(2))
	}
}
