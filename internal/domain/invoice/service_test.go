package invoice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/app/apptest"
	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/domain/ledger"
)

func TestService_CreateAllocatesSequentialNumbers(t *testing.T) {
	f := apptest.New(t)

	d1 := f.CreateDraft(t, apptest.Line("1", "100", "20", "0"))
	d2 := f.CreateDraft(t, apptest.Line("1", "100", "20", "0"))

	assert.Equal(t, "FAC-2024-00001", d1.Number())
	assert.Equal(t, "FAC-2024-00002", d2.Number())
	assert.True(t, d1.Record().ExchangeRate.Equal(apptest.Money("1")))

	h := apptest.SalesHeader()
	h.Direction = invoice.DirectionPurchase
	p, err := f.Invoices.Create(context.Background(), h, nil)
	require.NoError(t, err)
	assert.Equal(t, "FAF-2024-00001", p.Number())
}

func TestService_CreateForeignCurrency(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	h := apptest.SalesHeader()
	h.Currency = "EUR"
	_, err := f.Invoices.Create(ctx, h, []invoice.LineInput{apptest.Line("1", "100", "20", "0")})
	require.Error(t, err)
	assert.True(t, apperror.IsConfiguration(err))

	_, err = f.Currency.UpsertRate(ctx, currency.ExchangeRate{
		Source: "EUR", Target: "XOF", Rate: apptest.Money("655.957"),
		EffectiveDate: apptest.Today.AddDate(0, -1, 0), Active: true,
	})
	require.NoError(t, err)

	d, err := f.Invoices.Create(ctx, h, []invoice.LineInput{apptest.Line("1", "100", "20", "0")})
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-00001", d.Number(), "failed creation must not consume a number")
	assert.Equal(t, "655.957", d.Record().ExchangeRate.String())

	h.ExchangeRate = apptest.Money("650")
	d, err = f.Invoices.Create(ctx, h, nil)
	require.NoError(t, err)
	assert.Equal(t, "650", d.Record().ExchangeRate.String())
}

func TestService_EditDraft(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	d := f.CreateDraft(t, apptest.Line("1", "2500000", "20", "0"))

	d, err := f.Invoices.AddLine(ctx, d.Number(), apptest.Line("2", "15000", "20", "10"))
	require.NoError(t, err)
	d, err = f.Invoices.AddLine(ctx, d.Number(), apptest.Line("1", "150000", "20", "0"))
	require.NoError(t, err)

	qty := apptest.Money("2")
	third := d.Lines()[2].LineID
	d, err = f.Invoices.UpdateLine(ctx, d.Number(), third, invoice.LinePatch{Quantity: &qty})
	require.NoError(t, err)

	assert.Equal(t, "2827000", d.Totals().AmountHT.String())
	assert.Equal(t, "565400", d.Totals().AmountTax.String())
	assert.Equal(t, "3392400", d.Totals().AmountTTC.String())
	assert.Equal(t, 4, d.Record().Version)

	stored, err := f.Invoices.Get(ctx, d.Number())
	require.NoError(t, err)
	assert.Len(t, stored.Record().Lines, 3)
	assert.Equal(t, "3392400", stored.Record().AmountTTC.String())

	d, err = f.Invoices.RemoveLine(ctx, d.Number(), third)
	require.NoError(t, err)
	assert.Equal(t, "2527000", d.Totals().AmountHT.String())

	notes := "urgent"
	d, err = f.Invoices.UpdateHeader(ctx, d.Number(), invoice.HeaderPatch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "urgent", d.Record().Notes)
}

func TestService_ValidateWritesOneBatch(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	var hooked []string
	f.Invoices.Hooks().On(domain.AfterValidate, func(_ context.Context, st invoice.State) error {
		hooked = append(hooked, st.Number())
		return nil
	})

	v := f.CreateValidated(t,
		apptest.Line("1", "2500000", "20", "0"),
		apptest.Line("2", "15000", "20", "10"),
		apptest.Line("2", "150000", "20", "0"),
	)
	assert.Equal(t, invoice.StatusValidated, v.Status())
	assert.Equal(t, []string{v.Number()}, hooked)

	entries, err := f.Ledger.EntriesByReference(ctx, v.Number())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "411", entries[0].Account)
	assert.Equal(t, "3392400", entries[0].Debit.String())
	assert.Equal(t, "202403-000001", entries[0].EntryNumber)
	assert.Equal(t, "202403-000003", entries[2].EntryNumber)

	_, err = f.Invoices.Validate(ctx, v.Number())
	assert.True(t, apperror.IsInvalidState(err))

	again, err := f.Ledger.GenerateForInvoice(ctx, v.Number())
	require.NoError(t, err)
	assert.Equal(t, entries, again.Entries)
	assert.Equal(t, 1, f.Metrics.BatchCount(ledger.KindInvoice))

	assert.Equal(t, []string{events.InvoiceValidated}, f.Store.Outbox().Types())
}

func TestService_ValidateReportsViolationsAndKeepsDraft(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	d := f.CreateDraft(t)

	_, err := f.Invoices.Validate(ctx, d.Number())
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	st, err := f.Invoices.Get(ctx, d.Number())
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, st.Status())
	assert.Empty(t, f.Store.Journal().Batches())
	assert.Empty(t, f.Store.Outbox().Events())
}

func TestService_ValidateRollsBackOnMissingMapping(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	require.NoError(t, f.Store.Chart().UpsertAccount(ctx, ledger.Account{
		Category: ledger.CategoryVATCollected, Code: "44571", Active: false,
	}))
	d := f.CreateDraft(t, apptest.Line("1", "100", "20", "0"))

	_, err := f.Invoices.Validate(ctx, d.Number())
	require.Error(t, err)
	assert.True(t, apperror.IsConfiguration(err))

	st, err := f.Invoices.Get(ctx, d.Number())
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, st.Status())
	assert.Equal(t, 1, st.Record().Version)
	assert.Empty(t, f.Store.Journal().Batches())

	entries, err := f.Ledger.EntriesByReference(ctx, d.Number())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_StateGating(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	v := f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))
	_, err := f.Invoices.AddLine(ctx, v.Number(), apptest.Line("1", "1", "0", "0"))
	assert.True(t, apperror.IsInvalidState(err))
	_, err = f.Invoices.RemoveLine(ctx, v.Number(), v.Lines()[0].LineID)
	assert.True(t, apperror.IsInvalidState(err))

	c, err := f.Invoices.Cancel(ctx, v.Number(), "customer refused")
	require.NoError(t, err)
	assert.True(t, c.WasValidated())

	_, err = f.Invoices.AddLine(ctx, c.Number(), apptest.Line("1", "1", "0", "0"))
	assert.True(t, apperror.IsInvalidState(err))
	_, err = f.Invoices.Cancel(ctx, c.Number(), "again")
	assert.True(t, apperror.IsInvalidState(err))
	_, err = f.Invoices.Validate(ctx, c.Number())
	assert.True(t, apperror.IsInvalidState(err))

	_, err = f.Invoices.AddLine(ctx, "FAC-2024-99999", apptest.Line("1", "1", "0", "0"))
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_CancelValidatedKeepsJournal(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	v := f.CreateValidated(t, apptest.Line("2", "15000", "20", "10"))
	_, err := f.Invoices.Cancel(ctx, v.Number(), "wrong customer")
	require.NoError(t, err)

	entries, err := f.Ledger.EntriesByReference(ctx, v.Number())
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = f.Ledger.GenerateForInvoice(ctx, v.Number())
	require.NoError(t, err, "existing batch is returned unchanged")

	assert.Equal(t, []string{events.InvoiceValidated, events.InvoiceCancelled}, f.Store.Outbox().Types())
}

func TestService_CancelDraft(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	d := f.CreateDraft(t, apptest.Line("1", "100", "20", "0"))

	c, err := f.Invoices.Cancel(ctx, d.Number(), "duplicate")
	require.NoError(t, err)
	assert.False(t, c.WasValidated())

	_, err = f.Ledger.GenerateForInvoice(ctx, d.Number())
	assert.True(t, apperror.IsInvalidState(err))
	_, err = f.Ledger.ReverseInvoice(ctx, d.Number())
	assert.True(t, apperror.IsInvalidState(err))
	assert.Empty(t, f.Store.Journal().Batches())
}

func TestService_List(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	f.CreateDraft(t, apptest.Line("1", "100", "20", "0"))
	f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))
	f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))

	res, err := f.Invoices.List(ctx, invoice.ListFilter{Status: invoice.StatusValidated})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalCount)
	assert.Equal(t, 50, res.Limit)

	res, err = f.Invoices.List(ctx, invoice.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.TotalCount)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "FAC-2024-00002", res.Items[0].Number)
}
