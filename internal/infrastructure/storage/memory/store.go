// Package memory keeps every ledger table in process memory. It backs the
// service tests and the ledgerctl demo.
//
// Transactions roll back through an undo log and per-key locks are held
// until the outermost transaction ends. Writes of an open transaction are
// visible to other goroutines; callers serialize through Lock.
package memory

import (
	"context"
	"errors"
	"sync"

	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/payment"
)

// ErrNoTransaction is returned by Lock outside RunInTransaction.
var ErrNoTransaction = errors.New("memory: lock requires a transaction")

// Store holds the tables.
type Store struct {
	mu sync.RWMutex

	invoices     map[string]invoice.Record
	payments     map[string]payment.Payment
	paymentOrder []string
	batches      map[batchKey]ledger.Batch
	batchOrder   []batchKey
	accounts     []ledger.Account
	rates        []currency.ExchangeRate
	sequences    map[string]int64
	events       []eventRow
	audit        []auditRow
	seq          int64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

type batchKey struct {
	reference string
	kind      ledger.BatchKind
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		invoices:  make(map[string]invoice.Record),
		payments:  make(map[string]payment.Payment),
		batches:   make(map[batchKey]ledger.Batch),
		sequences: make(map[string]int64),
		locks:     make(map[string]*sync.Mutex),
	}
}

type txState struct {
	held map[string]*sync.Mutex
	undo []func()
}

type txKey struct{}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// RunInTransaction runs fn. Nested calls join the outer transaction.
// When the outermost fn fails or panics, its writes are undone and its
// locks released; a panic is then re-raised.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	st := &txState{held: make(map[string]*sync.Mutex)}
	committed := false
	defer func() {
		if !committed {
			s.rollback(st)
		}
		for _, m := range st.held {
			m.Unlock()
		}
	}()

	err = fn(context.WithValue(ctx, txKey{}, st))
	committed = err == nil
	return err
}

func (s *Store) rollback(st *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
}

// ReadOnly runs fn in a transaction.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// Lock takes the lock of key until the transaction ends. Taking a key
// twice in one transaction is a no-op.
func (s *Store) Lock(ctx context.Context, key string) error {
	st := txFrom(ctx)
	if st == nil {
		return ErrNoTransaction
	}
	if _, ok := st.held[key]; ok {
		return nil
	}

	s.locksMu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	st.held[key] = m
	return nil
}

// onRollback registers undo for the current transaction. It must be called
// with s.mu held. Outside a transaction writes are final.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if st := txFrom(ctx); st != nil {
		st.undo = append(st.undo, undo)
	}
}

// Invoices returns the invoice repository.
func (s *Store) Invoices() *InvoiceRepo { return &InvoiceRepo{s: s} }

// Payments returns the payment repository.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s: s} }

// Journal returns the journal repository.
func (s *Store) Journal() *JournalRepo { return &JournalRepo{s: s} }

// Chart returns the chart of accounts repository.
func (s *Store) Chart() *ChartRepo { return &ChartRepo{s: s} }

// Rates returns the exchange rate repository.
func (s *Store) Rates() *RateRepo { return &RateRepo{s: s} }

// Numerator returns the number generator.
func (s *Store) Numerator() *Numerator { return &Numerator{s: s} }

// Outbox returns the event publisher.
func (s *Store) Outbox() *Outbox { return &Outbox{s: s} }

// AuditLog returns the audit recorder.
func (s *Store) AuditLog() *AuditLog { return &AuditLog{s: s} }
