package ledger

import (
	"time"

	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
)

// Journal is a journal code.
type Journal string

const (
	JournalSales     Journal = "ventes"
	JournalPurchases Journal = "achats"
	JournalBank      Journal = "banque"
	JournalCash      Journal = "caisse"
)

// BatchKind discriminates the batches sharing one reference.
type BatchKind string

const (
	KindInvoice    BatchKind = "invoice"
	KindSettlement BatchKind = "settlement"
	KindReversal   BatchKind = "reversal"
)

// Batch is the set of entries written by one generation event.
// (Reference, Kind) is unique in storage.
type Batch struct {
	ID           id.ID       `db:"id" json:"id"`
	Reference    string      `db:"reference" json:"reference"`
	Kind         BatchKind   `db:"kind" json:"kind"`
	Journal      Journal     `db:"journal" json:"journal"`
	Date         time.Time   `db:"entry_date" json:"date"`
	Currency     string      `db:"currency" json:"currency"`
	ExchangeRate types.Rate  `db:"exchange_rate" json:"exchangeRate"`
	TotalDebit   types.Money `db:"total_debit" json:"totalDebit"`
	TotalCredit  types.Money `db:"total_credit" json:"totalCredit"`
	// ReversesID is set on reversal batches.
	ReversesID *id.ID    `db:"reverses_id" json:"reversesId,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`

	Entries []Entry `db:"-" json:"entries"`
}

// Entry is one journal line. Exactly one of Debit and Credit is non-zero.
type Entry struct {
	entity.PostingBase

	EntryNumber  string      `db:"entry_number" json:"entryNumber"`
	LineNo       int         `db:"line_no" json:"lineNo"`
	Journal      Journal     `db:"journal" json:"journal"`
	Account      string      `db:"account_code" json:"account"`
	Label        string      `db:"label" json:"label"`
	Debit        types.Money `db:"debit" json:"debit"`
	Credit       types.Money `db:"credit" json:"credit"`
	Currency     string      `db:"currency" json:"currency"`
	ExchangeRate types.Rate  `db:"exchange_rate" json:"exchangeRate"`
	Reference    string      `db:"reference" json:"reference"`
}

// IsDebit reports whether the entry is on the debit side.
func (e Entry) IsDebit() bool { return !e.Debit.IsZero() }

// Amount returns the non-zero side.
func (e Entry) Amount() types.Money {
	if e.IsDebit() {
		return e.Debit
	}
	return e.Credit
}

// Allocation is one payment counted in a settlement.
type Allocation struct {
	PaymentNumber string
	// Amount in the invoice currency.
	Amount types.Money
	Cash   bool
}

// BatchTotal is a per-batch sum read back from storage.
type BatchTotal struct {
	BatchID   id.ID       `db:"batch_id" json:"batchId"`
	Reference string      `db:"reference" json:"reference"`
	Kind      BatchKind   `db:"kind" json:"kind"`
	Date      time.Time   `db:"entry_date" json:"date"`
	Lines     int         `db:"lines" json:"lines"`
	Debit     types.Money `db:"debit" json:"debit"`
	Credit    types.Money `db:"credit" json:"credit"`
}

// Balanced reports whether debit equals credit.
func (t BatchTotal) Balanced() bool { return t.Debit.Equal(t.Credit) }

// VerifyReport is the outcome of a balance verification run.
type VerifyReport struct {
	From       time.Time    `json:"from"`
	To         time.Time    `json:"to"`
	Batches    int          `json:"batches"`
	Unbalanced []BatchTotal `json:"unbalanced"`
}

// SettlementReference returns the reference of the settlement batch of an
// invoice. It never collides with the invoice batch reference.
func SettlementReference(purchase bool, invoiceNumber string) string {
	if purchase {
		return "PAY-SUPPLIER-" + invoiceNumber
	}
	return "PAY-CLIENT-" + invoiceNumber
}
