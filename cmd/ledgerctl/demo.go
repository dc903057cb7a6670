package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradeledger/internal/app"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/payment"
	"tradeledger/internal/infrastructure/storage/memory"
)

func newDemoCmd() *cobra.Command {
	var base string
	return &cobra.Command{
		Use:   "demo",
		Short: "Run an invoice-to-settlement walkthrough on an in-memory ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), base, time.Now)
		},
	}
}

func runDemo(ctx context.Context, out io.Writer, base string, clock func() time.Time) error {
	if base == "" {
		base = "XOF"
	}
	store := memory.NewStore()
	svc := app.New(app.MemoryStorage(store), app.Options{
		BaseCurrency:      base,
		SettlementJournal: true,
		Clock:             clock,
	})
	today := clock().UTC().Truncate(24 * time.Hour)

	if _, _, err := seed(ctx, svc, true, []currency.ExchangeRate{{
		Source: "EUR", Target: base, Rate: decimal.RequireFromString("655.957"),
		EffectiveDate: today.AddDate(0, 0, -30), Active: true,
	}}); err != nil {
		return err
	}

	line := func(desc, qty, price, tax, discount string) invoice.LineInput {
		return invoice.LineInput{
			Description:  desc,
			Quantity:     decimal.RequireFromString(qty),
			UnitPrice:    decimal.RequireFromString(price),
			TaxRate:      decimal.RequireFromString(tax),
			DiscountRate: decimal.RequireFromString(discount),
		}
	}

	// Sales invoice, paid in two instalments.
	draft, err := svc.Invoices.Create(ctx, invoice.Header{
		Direction:       invoice.DirectionSales,
		Type:            invoice.TypeInvoice,
		Date:            today,
		DueDate:         today.AddDate(0, 0, 30),
		CounterpartyRef: "CLI-001",
		Currency:        base,
	}, []invoice.LineInput{
		line("Consulting day", "3", "150000", "18", "0"),
		line("Licence", "1", "99999.99", "18", "5"),
	})
	if err != nil {
		return err
	}
	sale, err := svc.Invoices.Validate(ctx, draft.Number())
	if err != nil {
		return err
	}
	rec := sale.Record()
	t := rec.Totals()
	fmt.Fprintf(out, "== %s validated: HT %s  TVA %s  TTC %s %s\n",
		sale.Number(), t.AmountHT.StringFixed(2), t.AmountTax.StringFixed(2), t.AmountTTC.StringFixed(2), rec.Currency)
	if err := printEntries(ctx, out, svc, sale.Number()); err != nil {
		return err
	}

	first := decimal.RequireFromString("200000")
	for _, in := range []payment.Input{
		{Amount: first, Mode: payment.ModeCash},
		{Amount: t.AmountTTC.Sub(first), Mode: payment.ModeTransfer, Reference: "VIR-0001"},
	} {
		p, err := svc.Payments.RecordPayment(ctx, sale.Number(), in)
		if err != nil {
			return err
		}
		bal, err := svc.Payments.GetOutstandingBalance(ctx, sale.Number())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "== %s %s %s: outstanding %s settled=%t\n",
			p.Number, p.Mode, p.Amount.StringFixed(2), bal.Outstanding.StringFixed(2), bal.Settled)
	}
	if err := printEntries(ctx, out, svc, ledger.SettlementReference(false, sale.Number())); err != nil {
		return err
	}

	// Purchase invoice in EUR, then an overpayment attempt.
	draft, err = svc.Invoices.Create(ctx, invoice.Header{
		Direction:       invoice.DirectionPurchase,
		Type:            invoice.TypeInvoice,
		Date:            today,
		CounterpartyRef: "FRN-042",
		Currency:        "EUR",
	}, []invoice.LineInput{line("Spare parts", "10", "45.50", "18", "0")})
	if err != nil {
		return err
	}
	purchase, err := svc.Invoices.Validate(ctx, draft.Number())
	if err != nil {
		return err
	}
	rec = purchase.Record()
	fmt.Fprintf(out, "== %s validated at rate %s: TTC %s EUR\n",
		purchase.Number(), rec.ExchangeRate.String(), rec.Totals().AmountTTC.StringFixed(2))
	if err := printEntries(ctx, out, svc, purchase.Number()); err != nil {
		return err
	}
	_, err = svc.Payments.RecordPayment(ctx, purchase.Number(), payment.Input{
		Amount: decimal.RequireFromString("1000"), Mode: payment.ModeTransfer,
	})
	fmt.Fprintf(out, "== overpayment refused: %v\n", err)

	// Cancel the purchase and reverse its journal.
	if _, err := svc.Invoices.Cancel(ctx, purchase.Number(), "supplier error"); err != nil {
		return err
	}
	rev, err := svc.Ledger.ReverseInvoice(ctx, purchase.Number())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "== %s cancelled, reversal batch %s written\n", purchase.Number(), rev.ID)

	report, err := svc.Ledger.VerifyBalance(ctx, today.AddDate(0, 0, -1), today.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "== ledger verified: %d batches, %d unbalanced\n", report.Batches, len(report.Unbalanced))
	return nil
}

func printEntries(ctx context.Context, out io.Writer, svc *app.Services, reference string) error {
	entries, err := svc.Ledger.EntriesByReference(ctx, reference)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "entry\tjournal\taccount\tdebit\tcredit\t")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", e.EntryNumber, e.Journal, e.Account, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
	}
	debit, credit := ledger.Sums(entries)
	fmt.Fprintf(tw, "\t\ttotal\t%s\t%s\t\n", debit.StringFixed(2), credit.StringFixed(2))
	return tw.Flush()
}
