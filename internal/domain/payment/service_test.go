package payment_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/app/apptest"
	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/payment"
)

func pay(amount string, mode payment.Mode) payment.Input {
	return payment.Input{Amount: apptest.Money(amount), Mode: mode}
}

func byAccount(entries []ledger.Entry) map[string]ledger.Entry {
	out := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		out[e.Account] = e
	}
	return out
}

func TestRecordPayment_SettlesInvoice(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	inv := f.CreateValidated(t, apptest.Line("1", "2500000", "20", "0"))
	require.Equal(t, "3000000", inv.Totals().AmountTTC.String())

	p1, err := f.Payments.RecordPayment(ctx, inv.Number(), pay("1000000", payment.ModeTransfer))
	require.NoError(t, err)
	assert.Equal(t, "REG-2024-00001", p1.Number)
	assert.Equal(t, payment.StatusValidated, p1.Status)
	assert.Equal(t, apptest.BaseCurrency, p1.Currency)

	bal, err := f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.Equal(t, "2000000", bal.Outstanding.String())
	assert.False(t, bal.Settled)

	_, err = f.Payments.RecordPayment(ctx, inv.Number(), pay("2000000", payment.ModeCash))
	require.NoError(t, err)

	st, err := f.Invoices.Get(ctx, inv.Number())
	require.NoError(t, err)
	v, ok := st.(invoice.Validated)
	require.True(t, ok)
	assert.True(t, v.IsSettled())

	bal, err = f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.True(t, bal.Outstanding.IsZero())
	assert.True(t, bal.Settled)
	assert.False(t, bal.Inconsistent)

	entries, err := f.Ledger.EntriesByReference(ctx, "PAY-CLIENT-"+inv.Number())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	accounts := byAccount(entries)
	assert.Equal(t, "3000000", accounts["411"].Credit.String())
	assert.Equal(t, "1000000", accounts["512"].Debit.String())
	assert.Equal(t, "2000000", accounts["531"].Debit.String())
	assert.Equal(t, ledger.JournalBank, entries[0].Journal)
	assert.Equal(t, 1, f.Metrics.BatchCount(ledger.KindSettlement))

	_, err = f.Payments.RecordPayment(ctx, inv.Number(), pay("1", payment.ModeTransfer))
	require.Error(t, err)
	assert.True(t, apperror.IsOverpayment(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, "0", appErr.Details["max_acceptable"])

	assert.Equal(t, []string{
		events.InvoiceValidated,
		events.PaymentRecorded,
		events.PaymentRecorded,
		events.InvoiceSettled,
	}, f.Store.Outbox().Types())
	assert.Equal(t, 2, f.Metrics.Payments)
}

func TestRecordPayment_CashOnlyUsesCashJournal(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	inv := f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))

	_, err := f.Payments.RecordPayment(ctx, inv.Number(), pay("120", payment.ModeCash))
	require.NoError(t, err)

	entries, err := f.Ledger.EntriesByReference(ctx, "PAY-CLIENT-"+inv.Number())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.JournalCash, entries[0].Journal)
}

func TestRecordPayment_PurchaseSettlement(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	h := apptest.SalesHeader()
	h.Direction = invoice.DirectionPurchase
	h.CounterpartyRef = "SUP-001"
	d, err := f.Invoices.Create(ctx, h, []invoice.LineInput{apptest.Line("1", "100", "20", "0")})
	require.NoError(t, err)
	_, err = f.Invoices.Validate(ctx, d.Number())
	require.NoError(t, err)

	_, err = f.Payments.RecordPayment(ctx, d.Number(), pay("120", payment.ModeCheque))
	require.NoError(t, err)

	entries, err := f.Ledger.EntriesByReference(ctx, "PAY-SUPPLIER-"+d.Number())
	require.NoError(t, err)
	accounts := byAccount(entries)
	assert.Equal(t, "120", accounts["401"].Debit.String())
	assert.Equal(t, "120", accounts["512"].Credit.String())
}

func TestRecordPayment_SettlementJournalDisabled(t *testing.T) {
	f := apptest.New(t, apptest.WithoutSettlementJournal())
	ctx := context.Background()
	inv := f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))

	_, err := f.Payments.RecordPayment(ctx, inv.Number(), pay("120", payment.ModeTransfer))
	require.NoError(t, err)

	bal, err := f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.True(t, bal.Settled)

	entries, err := f.Ledger.EntriesByReference(ctx, "PAY-CLIENT-"+inv.Number())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordPayment_RollsBackWhenSettlementFails(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	require.NoError(t, f.Store.Chart().UpsertAccount(ctx, ledger.Account{
		Category: ledger.CategoryBank, Code: "512", Active: false,
	}))
	inv := f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))

	_, err := f.Payments.RecordPayment(ctx, inv.Number(), pay("120", payment.ModeTransfer))
	require.Error(t, err)
	assert.True(t, apperror.IsConfiguration(err))

	payments, err := f.Payments.ListPayments(ctx, inv.Number())
	require.NoError(t, err)
	assert.Empty(t, payments)

	bal, err := f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.False(t, bal.Settled)
	assert.Equal(t, "120", bal.Outstanding.String())

	p, err := f.Payments.RecordPayment(ctx, inv.Number(), pay("20", payment.ModeTransfer))
	require.NoError(t, err)
	assert.Equal(t, "REG-2024-00001", p.Number, "rolled back payment must not consume a number")
}

func TestRecordPayment_Rejections(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	d := f.CreateDraft(t, apptest.Line("1", "100", "20", "0"))
	_, err := f.Payments.RecordPayment(ctx, d.Number(), pay("10", payment.ModeTransfer))
	assert.True(t, apperror.IsInvalidState(err))

	_, err = f.Payments.RecordPayment(ctx, "FAC-2024-99999", pay("10", payment.ModeTransfer))
	assert.True(t, apperror.IsNotFound(err))

	inv := f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))
	_, err = f.Payments.RecordPayment(ctx, inv.Number(), pay("0", payment.ModeTransfer))
	assert.True(t, apperror.IsValidation(err))
	_, err = f.Payments.RecordPayment(ctx, inv.Number(), pay("10", payment.Mode("barter")))
	assert.True(t, apperror.IsValidation(err))

	_, err = f.Payments.RecordPayment(ctx, inv.Number(), pay("100", payment.ModeTransfer))
	require.NoError(t, err)
	_, err = f.Payments.RecordPayment(ctx, inv.Number(), pay("20.01", payment.ModeTransfer))
	require.Error(t, err)
	assert.True(t, apperror.IsOverpayment(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, "20", appErr.Details["max_acceptable"])

	c, err := f.Invoices.Cancel(ctx, d.Number(), "void")
	require.NoError(t, err)
	_, err = f.Payments.RecordPayment(ctx, c.Number(), pay("10", payment.ModeTransfer))
	assert.True(t, apperror.IsInvalidState(err))
}

func TestRecordPayment_DuplicateReference(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	inv := f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))

	in := pay("10", payment.ModeCheque)
	in.Reference = "CHQ-0042"
	first, err := f.Payments.RecordPayment(ctx, inv.Number(), in)
	require.NoError(t, err)

	_, err = f.Payments.RecordPayment(ctx, inv.Number(), in)
	assert.True(t, apperror.IsDuplicate(err))

	_, err = f.Payments.CancelPayment(ctx, first.Number, "bounced")
	require.NoError(t, err)
	_, err = f.Payments.RecordPayment(ctx, inv.Number(), in)
	assert.NoError(t, err)
}

func TestRecordPayment_ForeignCurrency(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	_, err := f.Currency.UpsertRate(ctx, currency.ExchangeRate{
		Source: "EUR", Target: "XOF", Rate: apptest.Money("655.957"),
		EffectiveDate: apptest.Today.AddDate(0, 0, -1), Active: true,
	})
	require.NoError(t, err)
	inv := f.CreateValidated(t, apptest.Line("1", "2500000", "20", "0"))

	in := pay("100", payment.ModeTransfer)
	in.Currency = "eur"
	p, err := f.Payments.RecordPayment(ctx, inv.Number(), in)
	require.NoError(t, err)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, "655.957", p.ExchangeRate.String())
	assert.Equal(t, "65595.7", p.AmountInvoiceCurrency.String())

	bal, err := f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.Equal(t, "2934404.3", bal.Outstanding.String())

	in.Currency = "USD"
	_, err = f.Payments.RecordPayment(ctx, inv.Number(), in)
	assert.True(t, apperror.IsConfiguration(err))
}

func TestConfirmPayment(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	inv := f.CreateValidated(t, apptest.Line("1", "2500000", "20", "0"))

	in := pay("2000000", payment.ModeTransfer)
	in.Pending = true
	p1, err := f.Payments.RecordPayment(ctx, inv.Number(), in)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p1.Status)
	assert.Nil(t, p1.ConfirmedAt)
	p2, err := f.Payments.RecordPayment(ctx, inv.Number(), in)
	require.NoError(t, err)

	bal, err := f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.Equal(t, "3000000", bal.Outstanding.String())

	p1, err = f.Payments.ConfirmPayment(ctx, p1.Number)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusValidated, p1.Status)
	assert.NotNil(t, p1.ConfirmedAt)

	_, err = f.Payments.ConfirmPayment(ctx, p1.Number)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = f.Payments.ConfirmPayment(ctx, p2.Number)
	assert.True(t, apperror.IsOverpayment(err))

	in.Amount = apptest.Money("1000000")
	p3, err := f.Payments.RecordPayment(ctx, inv.Number(), in)
	require.NoError(t, err)
	_, err = f.Payments.ConfirmPayment(ctx, p3.Number)
	require.NoError(t, err)

	bal, err = f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.True(t, bal.Settled)
	assert.Equal(t, 1, f.Metrics.BatchCount(ledger.KindSettlement))
}

func TestCancelPayment(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	inv := f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))

	p, err := f.Payments.RecordPayment(ctx, inv.Number(), pay("50", payment.ModeTransfer))
	require.NoError(t, err)

	p, err = f.Payments.CancelPayment(ctx, p.Number, "entered twice")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, p.Status)
	assert.Equal(t, "entered twice", p.CancelReason)

	_, err = f.Payments.CancelPayment(ctx, p.Number, "again")
	assert.True(t, apperror.IsInvalidState(err))

	bal, err := f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.Equal(t, "120", bal.Outstanding.String())

	full, err := f.Payments.RecordPayment(ctx, inv.Number(), pay("120", payment.ModeTransfer))
	require.NoError(t, err)
	_, err = f.Payments.CancelPayment(ctx, full.Number, "too late")
	assert.True(t, apperror.IsInvalidState(err))

	_, err = f.Payments.CancelPayment(ctx, "REG-2024-99999", "missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestGetOutstandingBalance_ClampsNegative(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	inv := f.CreateValidated(t, apptest.Line("1", "100", "20", "0"))

	require.NoError(t, f.Store.Payments().Create(ctx, &payment.Payment{
		Number:                "REG-2024-90000",
		InvoiceNumber:         inv.Number(),
		Date:                  apptest.Today,
		Amount:                apptest.Money("200"),
		Currency:              apptest.BaseCurrency,
		ExchangeRate:          apptest.Money("1"),
		AmountInvoiceCurrency: apptest.Money("200"),
		Mode:                  payment.ModeTransfer,
		Status:                payment.StatusValidated,
	}))

	bal, err := f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.True(t, bal.Outstanding.IsZero())
	assert.True(t, bal.Inconsistent)
	assert.Equal(t, "200", bal.Paid.String())
	assert.Equal(t, 1, f.Metrics.Violations["negative_balance"])
}

func TestRecordPayment_ConcurrentPaymentsSettleOnce(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()
	inv := f.CreateValidated(t, apptest.Line("1", "100", "0", "0"))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Payments.RecordPayment(ctx, inv.Number(), pay("25", payment.ModeTransfer)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else {
				assert.True(t, apperror.IsOverpayment(err))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, accepted)
	assert.Equal(t, 1, f.Metrics.BatchCount(ledger.KindSettlement))

	bal, err := f.Payments.GetOutstandingBalance(ctx, inv.Number())
	require.NoError(t, err)
	assert.True(t, bal.Settled)
	assert.True(t, bal.Outstanding.IsZero())
}
