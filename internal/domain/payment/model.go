// Package payment records payments against validated invoices, keeps the
// outstanding balance and settles invoices once they are fully paid.
package payment

import (
	"strings"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/types"
)

// Mode is the payment instrument.
type Mode string

const (
	ModeCash     Mode = "cash"
	ModeTransfer Mode = "transfer"
	ModeCheque   Mode = "cheque"
	ModeCard     Mode = "card"
)

func (m Mode) valid() bool {
	switch m {
	case ModeCash, ModeTransfer, ModeCheque, ModeCard:
		return true
	}
	return false
}

// Status of a payment. Only validated payments count toward the paid sum.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusCancelled Status = "cancelled"
)

// Payment is a recorded payment. Once validated only its status may change.
type Payment struct {
	entity.BaseDocument

	Number        string      `db:"number" json:"number"`
	InvoiceNumber string      `db:"invoice_number" json:"invoiceNumber"`
	Date          time.Time   `db:"payment_date" json:"date"`
	Amount        types.Money `db:"amount" json:"amount"`
	Currency      string      `db:"currency" json:"currency"`
	// ExchangeRate converts the payment currency into the invoice currency.
	ExchangeRate          types.Rate  `db:"exchange_rate" json:"exchangeRate"`
	AmountInvoiceCurrency types.Money `db:"amount_invoice_currency" json:"amountInvoiceCurrency"`
	Mode                  Mode        `db:"mode" json:"mode"`
	Reference             string      `db:"reference" json:"reference,omitempty"`
	Status                Status      `db:"status" json:"status"`

	ConfirmedAt  *time.Time `db:"confirmed_at" json:"confirmedAt,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty"`
}

// Input carries the caller-supplied fields of a new payment.
type Input struct {
	Date   time.Time
	Amount types.Money
	// Currency defaults to the invoice currency.
	Currency string
	// ExchangeRate (payment to invoice currency) is resolved when zero.
	ExchangeRate types.Rate
	Mode         Mode
	Reference    string
	// Pending records the payment without counting it until confirmed.
	Pending bool
}

func (in *Input) normalize(now time.Time) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Date.IsZero() {
		in.Date = now
	}
	if in.Mode == "" {
		in.Mode = ModeTransfer
	}
}

func (in Input) validate() error {
	var v apperror.Violations
	if !in.Amount.IsPositive() {
		v.Add("amount", "amount must be greater than zero")
	}
	if !in.Mode.valid() {
		v.Addf("mode", "unknown payment mode %q", in.Mode)
	}
	if in.Currency != "" && len(in.Currency) != 3 {
		v.Addf("currency", "invalid currency code %q", in.Currency)
	}
	if in.ExchangeRate.IsNegative() {
		v.Add("exchangeRate", "exchange rate must be positive")
	}
	return v.Err("invalid payment")
}

// Balance is the payment position of an invoice, in the invoice currency.
type Balance struct {
	InvoiceNumber string      `json:"invoiceNumber"`
	Currency      string      `json:"currency"`
	Total         types.Money `json:"total"`
	Paid          types.Money `json:"paid"`
	Outstanding   types.Money `json:"outstanding"`
	Settled       bool        `json:"settled"`
	// Inconsistent is set when payments exceed the total; Outstanding is
	// then clamped to zero.
	Inconsistent bool `json:"inconsistent"`
}

// PaidSum sums the validated payments in the invoice currency.
func PaidSum(payments []Payment) types.Money {
	sum := types.Zero()
	for _, p := range payments {
		if p.Status == StatusValidated {
			sum = sum.Add(p.AmountInvoiceCurrency)
		}
	}
	return sum
}
