// Package audit defines the audit trail contract of lifecycle transitions.
package audit

import (
	"context"

	"tradeledger/internal/core/id"
)

// Action is the audited transition.
type Action string

const (
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionValidate      Action = "validate"
	ActionCancel        Action = "cancel"
	ActionSettle        Action = "settle"
	ActionRecordPayment Action = "record_payment"
	ActionConfirm       Action = "confirm"
	ActionReverse       Action = "reverse"
)

// Entry is one audited change.
type Entry struct {
	EntityType string
	EntityID   id.ID
	EntityKey  string // human key, e.g. the invoice number
	Action     Action
	Changes    map[string]any
}

// Recorder persists audit entries inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
