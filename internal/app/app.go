// Package app wires the domain services over a storage backend.
package app

import (
	"time"

	"tradeledger/internal/core/numerator"
	"tradeledger/internal/core/tx"
	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/payment"
	"tradeledger/internal/infrastructure/storage/memory"
)

// Storage is the set of repositories the services run on.
type Storage struct {
	Tx        tx.LockingManager
	Invoices  invoice.Repository
	Payments  payment.Repository
	Journal   ledger.Repository
	Chart     ledger.ChartRepository
	Rates     currency.Repository
	Numerator numerator.Generator
	Events    events.Publisher
	Audit     audit.Recorder
}

// Metrics observes journal generation, payment reconciliation and the
// invoice lifecycle.
type Metrics interface {
	ledger.Metrics
	payment.Metrics
	LifecycleMetrics
}

// Options tune the services.
type Options struct {
	BaseCurrency      string
	SettlementJournal bool
	// RateCache may be nil.
	RateCache currency.Cache
	// Metrics may be nil.
	Metrics Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Services are the wired domain services.
type Services struct {
	Currency *currency.Service
	Invoices *invoice.Service
	Ledger   *ledger.Service
	Payments *payment.Service
	// Numbers exposes the document counters for operator corrections.
	Numbers numerator.Generator
}

// New wires the services.
func New(st Storage, opts Options) *Services {
	var lm ledger.Metrics
	var pm payment.Metrics
	if opts.Metrics != nil {
		lm, pm = opts.Metrics, opts.Metrics
	}

	rates := currency.NewService(st.Rates, opts.RateCache)

	journal := ledger.NewService(ledger.ServiceConfig{
		Repo:      st.Journal,
		Chart:     st.Chart,
		Invoices:  st.Invoices,
		Numerator: st.Numerator,
		TxManager: st.Tx,
		Audit:     st.Audit,
		Metrics:   lm,
		Clock:     opts.Clock,
	})

	invoices := invoice.NewService(invoice.ServiceConfig{
		Repo:         st.Invoices,
		Numerator:    st.Numerator,
		TxManager:    st.Tx,
		Rates:        rates,
		Journal:      journal,
		Events:       st.Events,
		Audit:        st.Audit,
		BaseCurrency: opts.BaseCurrency,
		Clock:        opts.Clock,
	})

	payments := payment.NewService(payment.ServiceConfig{
		Repo:              st.Payments,
		Invoices:          invoices,
		Journal:           journal,
		Rates:             rates,
		Numerator:         st.Numerator,
		TxManager:         st.Tx,
		Events:            st.Events,
		Audit:             st.Audit,
		Metrics:           pm,
		SettlementJournal: opts.SettlementJournal,
		Clock:             opts.Clock,
	})

	var lc LifecycleMetrics
	if opts.Metrics != nil {
		lc = opts.Metrics
	}
	observeLifecycle(invoices.Hooks(), lc)

	return &Services{
		Currency: rates,
		Invoices: invoices,
		Ledger:   journal,
		Payments: payments,
		Numbers:  st.Numerator,
	}
}

// MemoryStorage exposes an in-memory store as Storage.
func MemoryStorage(s *memory.Store) Storage {
	return Storage{
		Tx:        s,
		Invoices:  s.Invoices(),
		Payments:  s.Payments(),
		Journal:   s.Journal(),
		Chart:     s.Chart(),
		Rates:     s.Rates(),
		Numerator: s.Numerator(),
		Events:    s.Outbox(),
		Audit:     s.AuditLog(),
	}
}
