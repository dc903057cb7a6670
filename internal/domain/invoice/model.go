// Package invoice implements the invoice aggregate and its lifecycle.
//
// An invoice is held as one of three immutable state values: Draft,
// Validated or Cancelled. Only Draft has editing methods, and every
// transition returns a new value.
package invoice

import (
	"time"

	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
)

// Direction tells whether the invoice is issued to a client or received
// from a supplier.
type Direction string

const (
	DirectionSales    Direction = "sales"
	DirectionPurchase Direction = "purchase"
)

// DocType is the kind of document.
type DocType string

const (
	TypeProforma   DocType = "proforma"
	TypeInvoice    DocType = "invoice"
	TypeCreditNote DocType = "credit_note"
)

// Status is the primary lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusCancelled Status = "cancelled"
)

func (d Direction) valid() bool { return d == DirectionSales || d == DirectionPurchase }

func (t DocType) valid() bool {
	return t == TypeProforma || t == TypeInvoice || t == TypeCreditNote
}

// Line is a computed invoice line.
type Line struct {
	LineID       id.ID          `db:"line_id" json:"lineId"`
	LineNo       int            `db:"line_no" json:"lineNo"`
	ArticleRef   string         `db:"article_ref" json:"articleRef,omitempty"`
	Description  string         `db:"description" json:"description"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice    types.Money    `db:"unit_price" json:"unitPrice"`
	TaxRate      types.Percent  `db:"tax_rate" json:"taxRate"`
	DiscountRate types.Percent  `db:"discount_rate" json:"discountRate"`
	AmountHT     types.Money    `db:"amount_ht" json:"amountHt"`
	AmountTax    types.Money    `db:"amount_tax" json:"amountTax"`
	AmountTTC    types.Money    `db:"amount_ttc" json:"amountTtc"`
}

// LineInput carries the editable fields of a line.
type LineInput struct {
	ArticleRef   string
	Description  string
	Quantity     types.Quantity
	UnitPrice    types.Money
	TaxRate      types.Percent
	DiscountRate types.Percent
}

// LinePatch updates the non-nil fields of a line.
type LinePatch struct {
	ArticleRef   *string
	Description  *string
	Quantity     *types.Quantity
	UnitPrice    *types.Money
	TaxRate      *types.Percent
	DiscountRate *types.Percent
}

// Totals are the derived header amounts.
type Totals struct {
	AmountHT  types.Money `json:"amountHt"`
	AmountTax types.Money `json:"amountTax"`
	AmountTTC types.Money `json:"amountTtc"`
}

// Header carries the caller-supplied header fields of a new invoice.
type Header struct {
	Direction       Direction
	Type            DocType
	Date            time.Time
	DueDate         time.Time
	CounterpartyRef string
	PaymentTerms    string
	Currency        string
	// ExchangeRate converts the invoice currency into the base currency.
	// Zero means "resolve it".
	ExchangeRate  types.Rate
	CreditsNumber string
	Notes         string
}

// HeaderPatch updates the non-nil header fields of a draft.
type HeaderPatch struct {
	Date            *time.Time
	DueDate         *time.Time
	CounterpartyRef *string
	PaymentTerms    *string
	Notes           *string
}

// Record is the persisted form of an invoice in any state. Code outside
// storage should work with the State values instead.
type Record struct {
	entity.BaseDocument

	Number          string     `db:"number" json:"number"`
	Direction       Direction  `db:"direction" json:"direction"`
	Type            DocType    `db:"doc_type" json:"type"`
	Date            time.Time  `db:"doc_date" json:"date"`
	DueDate         time.Time  `db:"due_date" json:"dueDate"`
	CounterpartyRef string     `db:"counterparty_ref" json:"counterpartyRef"`
	PaymentTerms    string     `db:"payment_terms" json:"paymentTerms,omitempty"`
	Currency        string     `db:"currency" json:"currency"`
	ExchangeRate    types.Rate `db:"exchange_rate" json:"exchangeRate"`
	CreditsNumber   string     `db:"credits_number" json:"creditsNumber,omitempty"`
	Notes           string     `db:"notes" json:"notes,omitempty"`
	Status          Status     `db:"status" json:"status"`

	AmountHT  types.Money `db:"amount_ht" json:"amountHt"`
	AmountTax types.Money `db:"amount_tax" json:"amountTax"`
	AmountTTC types.Money `db:"amount_ttc" json:"amountTtc"`

	ValidatedAt  *time.Time `db:"validated_at" json:"validatedAt,omitempty"`
	SettledAt    *time.Time `db:"settled_at" json:"settledAt,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty"`

	Lines []Line `db:"-" json:"lines"`
}

// Totals returns the stored header totals.
func (r Record) Totals() Totals {
	return Totals{AmountHT: r.AmountHT, AmountTax: r.AmountTax, AmountTTC: r.AmountTTC}
}

// clone returns a deep copy so that state values never share line storage.
func (r Record) clone() Record {
	out := r
	out.Lines = append([]Line(nil), r.Lines...)
	out.ValidatedAt = copyTime(r.ValidatedAt)
	out.SettledAt = copyTime(r.SettledAt)
	out.CancelledAt = copyTime(r.CancelledAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ListFilter filters invoice lists.
type ListFilter struct {
	Direction       Direction
	Type            DocType
	Status          Status
	CounterpartyRef string
	Settled         *bool
	DateFrom        *time.Time
	DateTo          *time.Time
	Search          string
	Limit           int
	Offset          int
}

// LockKey is the mutual exclusion key of an invoice, shared by every
// component that writes on its behalf.
func LockKey(number string) string {
	return "invoice:" + number
}
