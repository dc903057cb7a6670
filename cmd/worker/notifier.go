package main

import (
	"context"
	"encoding/json"
	"fmt"

	"tradeledger/internal/domain/events"
	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/pkg/logger"
)

// DeliveryMetrics counts relayed messages.
type DeliveryMetrics interface {
	OutboxDelivered(eventType string, ok bool)
}

// Notifier turns outbox events into counterparty notifications. Sending is
// a log line until a mail gateway is configured.
type Notifier struct {
	metrics DeliveryMetrics
}

// NewNotifier creates a notifier. A nil metrics pointer is allowed.
func NewNotifier(m DeliveryMetrics) *Notifier {
	return &Notifier{metrics: m}
}

var _ postgres.OutboxHandler = (*Notifier)(nil)

// Handle implements postgres.OutboxHandler.
func (n *Notifier) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	err := n.notify(ctx, msg)
	if n.metrics != nil {
		n.metrics.OutboxDelivered(msg.EventType, err == nil)
	}
	return err
}

func (n *Notifier) notify(ctx context.Context, msg *postgres.OutboxMessage) error {
	switch msg.EventType {
	case events.InvoiceValidated, events.InvoiceCancelled, events.InvoiceSettled:
		var p events.InvoicePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
		}
		logger.Info(ctx, "notification sent",
			"event", msg.EventType,
			"invoice", p.Number,
			"counterparty", p.CounterpartyRef,
			"amount", p.AmountTTC.StringFixed(2),
			"currency", p.Currency)
		return nil

	case events.PaymentRecorded, events.PaymentCancelled:
		var p events.PaymentPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
		}
		logger.Info(ctx, "notification sent",
			"event", msg.EventType,
			"payment", p.Number,
			"invoice", p.InvoiceNumber,
			"amount", p.Amount.StringFixed(2),
			"currency", p.Currency)
		return nil

	default:
		// Unknown events are acknowledged so they do not block the outbox.
		logger.Warn(ctx, "unhandled outbox event", "event", msg.EventType, "id", msg.ID)
		return nil
	}
}
