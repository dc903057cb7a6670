package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/invoice"
)

// posting is an entry before it gets its storage identity.
type posting struct {
	account Account
	label   string
	debit   bool
	amount  types.Money
}

// bucket sums the lines sharing one tax rate.
type bucket struct {
	rate types.Percent
	ht   types.Money
	tax  types.Money
}

func taxBuckets(lines []invoice.Line) []bucket {
	idx := make(map[string]int)
	var out []bucket
	for _, l := range lines {
		key := l.TaxRate.String()
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, bucket{rate: l.TaxRate, ht: types.Zero(), tax: types.Zero()})
		}
		out[i].ht = out[i].ht.Add(l.AmountHT)
		out[i].tax = out[i].tax.Add(l.AmountTax)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].rate.LessThan(out[b].rate) })
	return out
}

// BuildInvoiceBatch produces the journal batch of a validated invoice.
//
// Sales: receivable debit TTC, revenue credit HT and VAT collected credit
// per tax rate. Purchases mirror it on payable, purchases and VAT
// deductible. A credit note swaps every side. Zero amounts produce no line.
func BuildInvoiceBatch(chart *Chart, inv invoice.Validated, now time.Time) (Batch, error) {
	purchase := inv.Direction() == invoice.DirectionPurchase
	creditNote := inv.Type() == invoice.TypeCreditNote
	cp := inv.CounterpartyRef()

	partyCat, baseCat, vatCat, journal := CategoryReceivable, CategoryRevenue, CategoryVATCollected, JournalSales
	if purchase {
		partyCat, baseCat, vatCat, journal = CategoryPayable, CategoryPurchases, CategoryVATDeductible, JournalPurchases
	}

	party, err := chart.Resolve(partyCat, cp)
	if err != nil {
		return Batch{}, withReference(err, inv.Number())
	}
	base, err := chart.Resolve(baseCat, cp)
	if err != nil {
		return Batch{}, withReference(err, inv.Number())
	}

	// The counterparty side of a sales invoice is the debit.
	partyDebit := !purchase
	if creditNote {
		partyDebit = !partyDebit
	}

	docLabel := "Invoice"
	if creditNote {
		docLabel = "Credit note"
	}
	baseLabel := "Revenue"
	if purchase {
		baseLabel = "Purchases"
	}

	totals := inv.Totals()
	postings := []posting{{
		account: party,
		label:   fmt.Sprintf("%s %s %s", docLabel, inv.Number(), cp),
		debit:   partyDebit,
		amount:  totals.AmountTTC,
	}}

	buckets := taxBuckets(inv.Lines())
	for _, b := range buckets {
		postings = append(postings, posting{
			account: base,
			label:   fmt.Sprintf("%s %s (VAT %s%%)", baseLabel, inv.Number(), b.rate),
			debit:   !partyDebit,
			amount:  b.ht,
		})
	}
	for _, b := range buckets {
		if b.tax.IsZero() {
			continue
		}
		vat, err := chart.Resolve(vatCat, cp)
		if err != nil {
			return Batch{}, withReference(err, inv.Number())
		}
		postings = append(postings, posting{
			account: vat,
			label:   fmt.Sprintf("VAT %s%% %s", b.rate, inv.Number()),
			debit:   !partyDebit,
			amount:  b.tax,
		})
	}

	batch := newBatch(inv.Number(), KindInvoice, journal, inv.Date(), inv.Currency(), inv.ExchangeRate(), now)
	return fill(batch, postings, now)
}

// BuildSettlementBatch produces the settlement batch of a fully paid
// invoice: one line per treasury account and one line clearing the
// counterparty account for the invoice total.
func BuildSettlementBatch(chart *Chart, inv invoice.Validated, allocations []Allocation, date, now time.Time) (Batch, error) {
	purchase := inv.Direction() == invoice.DirectionPurchase
	ref := SettlementReference(purchase, inv.Number())
	total := inv.Totals().AmountTTC

	paid := types.Zero()
	bank, cash := types.Zero(), types.Zero()
	for _, a := range allocations {
		paid = paid.Add(a.Amount)
		if a.Cash {
			cash = cash.Add(a.Amount)
		} else {
			bank = bank.Add(a.Amount)
		}
	}
	if !types.EqualCents(paid, total) {
		return Batch{}, apperror.NewConsistency("settlement allocations do not match the invoice total").
			WithDetail("reference", ref).
			WithDetail("paid", paid.String()).
			WithDetail("total", total.String())
	}

	cp := inv.CounterpartyRef()
	partyCat := CategoryReceivable
	if purchase {
		partyCat = CategoryPayable
	}
	party, err := chart.Resolve(partyCat, cp)
	if err != nil {
		return Batch{}, withReference(err, ref)
	}

	// On a sales invoice the treasury receives the money.
	treasuryDebit := !purchase
	if inv.Type() == invoice.TypeCreditNote {
		treasuryDebit = !treasuryDebit
	}

	postings := []posting{{
		account: party,
		label:   fmt.Sprintf("Settlement %s %s", inv.Number(), cp),
		debit:   !treasuryDebit,
		amount:  total,
	}}
	for _, t := range []struct {
		cat    Category
		amount types.Money
		label  string
	}{
		{CategoryBank, bank, "Bank"},
		{CategoryCash, cash, "Cash"},
	} {
		if t.amount.IsZero() {
			continue
		}
		acc, err := chart.Resolve(t.cat, cp)
		if err != nil {
			return Batch{}, withReference(err, ref)
		}
		postings = append(postings, posting{
			account: acc,
			label:   fmt.Sprintf("%s settlement %s", t.label, inv.Number()),
			debit:   treasuryDebit,
			amount:  types.Round2(t.amount),
		})
	}

	journal := JournalBank
	if bank.IsZero() && !cash.IsZero() {
		journal = JournalCash
	}

	batch := newBatch(ref, KindSettlement, journal, date, inv.Currency(), inv.ExchangeRate(), now)
	return fill(batch, postings, now)
}

// BuildReversal produces the batch cancelling original: every entry is
// copied with debit and credit swapped.
func BuildReversal(original Batch, date, now time.Time) Batch {
	batch := newBatch(original.Reference, KindReversal, original.Journal, date, original.Currency, original.ExchangeRate, now)
	reverses := original.ID
	batch.ReversesID = &reverses

	for i, e := range original.Entries {
		batch.Entries = append(batch.Entries, Entry{
			PostingBase:  newPostingBase(batch, now),
			LineNo:       i + 1,
			Journal:      batch.Journal,
			Account:      e.Account,
			Label:        "Reversal: " + e.Label,
			Debit:        e.Credit,
			Credit:       e.Debit,
			Currency:     e.Currency,
			ExchangeRate: e.ExchangeRate,
			Reference:    batch.Reference,
		})
	}
	batch.TotalDebit, batch.TotalCredit = original.TotalCredit, original.TotalDebit
	return batch
}

func newBatch(ref string, kind BatchKind, journal Journal, date time.Time, currency string, rate types.Rate, now time.Time) Batch {
	return Batch{
		ID:           BatchID(ref, kind),
		Reference:    ref,
		Kind:         kind,
		Journal:      journal,
		Date:         date,
		Currency:     currency,
		ExchangeRate: rate,
		TotalDebit:   types.Zero(),
		TotalCredit:  types.Zero(),
		CreatedAt:    now.UTC(),
	}
}

// BatchID is the deterministic id of the batch (ref, kind).
func BatchID(ref string, kind BatchKind) id.ID {
	return id.Derive("journal_batch", ref, string(kind))
}

func newPostingBase(b Batch, now time.Time) entity.PostingBase {
	return entity.NewPostingBase(b.ID, b.Date, now)
}

// fill turns postings into entries, then balances the batch.
func fill(batch Batch, postings []posting, now time.Time) (Batch, error) {
	entries := make([]Entry, 0, len(postings))
	for _, p := range postings {
		if p.amount.IsZero() {
			continue
		}
		if p.amount.IsNegative() {
			return Batch{}, apperror.NewConsistency("journal line amount is negative").
				WithDetail("reference", batch.Reference).
				WithDetail("account", p.account.Code).
				WithDetail("amount", p.amount.String())
		}
		e := Entry{
			PostingBase:  newPostingBase(batch, now),
			LineNo:       len(entries) + 1,
			Journal:      batch.Journal,
			Account:      p.account.Code,
			Label:        p.label,
			Debit:        types.Zero(),
			Credit:       types.Zero(),
			Currency:     batch.Currency,
			ExchangeRate: batch.ExchangeRate,
			Reference:    batch.Reference,
		}
		if p.debit {
			e.Debit = p.amount
		} else {
			e.Credit = p.amount
		}
		entries = append(entries, e)
	}

	balanced, _, err := Balance(entries, Tolerance(len(entries)))
	if err != nil {
		return Batch{}, withReference(err, batch.Reference)
	}
	batch.Entries = balanced
	batch.TotalDebit, batch.TotalCredit = Sums(balanced)
	return batch, nil
}

// Tolerance is the largest residual the last line may absorb: one cent per
// line of the batch.
func Tolerance(lines int) types.Money {
	return types.Cent.Mul(decimal.NewFromInt(int64(lines)))
}

// Sums returns the debit and credit totals.
func Sums(entries []Entry) (debit, credit types.Money) {
	debit, credit = types.Zero(), types.Zero()
	for _, e := range entries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit
}

// Balance asserts sum(debit) == sum(credit).
//
// A residual of at most tolerance is absorbed by the last entry, on
// whichever side it sits; residual is the amount moved. A larger residual,
// or an adjustment that would empty the last entry, is a
// CONSISTENCY_ERROR. The input slice is not modified.
func Balance(entries []Entry, tolerance types.Money) (out []Entry, residual types.Money, err error) {
	out = append([]Entry(nil), entries...)
	debit, credit := Sums(out)
	residual = debit.Sub(credit)
	if residual.IsZero() {
		return out, residual, nil
	}
	if len(out) == 0 || residual.Abs().GreaterThan(tolerance) {
		return nil, residual, apperror.NewConsistency("journal batch does not balance").
			WithDetail("debit", debit.String()).
			WithDetail("credit", credit.String())
	}

	last := &out[len(out)-1]
	if last.IsDebit() {
		last.Debit = last.Debit.Sub(residual)
	} else {
		last.Credit = last.Credit.Add(residual)
	}
	if !last.Amount().IsPositive() {
		return nil, residual, apperror.NewConsistency("rounding adjustment empties the last journal line").
			WithDetail("debit", debit.String()).
			WithDetail("credit", credit.String())
	}
	return out, residual, nil
}

func withReference(err error, ref string) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.WithDetail("reference", ref)
	}
	return err
}
