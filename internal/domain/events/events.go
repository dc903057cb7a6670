// Package events defines the domain events written to the transactional
// outbox and relayed by the worker.
package events

import (
	"context"
	"time"

	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
)

// Event types
const (
	InvoiceValidated = "invoice.validated"
	InvoiceCancelled = "invoice.cancelled"
	InvoiceSettled   = "invoice.settled"
	PaymentRecorded  = "payment.recorded"
	PaymentCancelled = "payment.cancelled"
)

// Aggregate types
const (
	AggregateInvoice = "invoice"
	AggregatePayment = "payment"
)

// Event is a domain event to be published via the outbox.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	Type          string
	Payload       any
}

// Publisher writes events inside the caller's transaction.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// InvoicePayload is the payload of invoice.* events.
type InvoicePayload struct {
	Number          string      `json:"number"`
	Direction       string      `json:"direction"`
	Type            string      `json:"type"`
	CounterpartyRef string      `json:"counterpartyRef"`
	Currency        string      `json:"currency"`
	AmountTTC       types.Money `json:"amountTtc"`
	OccurredAt      time.Time   `json:"occurredAt"`
}

// PaymentPayload is the payload of payment.* events.
type PaymentPayload struct {
	Number        string      `json:"number"`
	InvoiceNumber string      `json:"invoiceNumber"`
	Mode          string      `json:"mode"`
	Amount        types.Money `json:"amount"`
	Currency      string      `json:"currency"`
	OccurredAt    time.Time   `json:"occurredAt"`
}
