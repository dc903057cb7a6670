// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the implementations live in
// infrastructure/storage (postgres for production, memory for tests).
package tx

import (
	"context"
)

// Manager runs a unit of work.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work on one logical key (an invoice number) across
// concurrent transactions. The lock is held until the enclosing transaction
// ends; calling Lock outside a transaction is an error.
type Locker interface {
	Lock(ctx context.Context, key string) error
}

// LockingManager is a Manager that can also take per-key locks.
type LockingManager interface {
	Manager
	Locker
}
