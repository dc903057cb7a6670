// Package apptest builds fully wired services over an in-memory store for
// tests.
package apptest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/app"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/infrastructure/storage/memory"
)

// BaseCurrency of every fixture.
const BaseCurrency = "XOF"

// Today is the fixture clock start.
var Today = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

// Clock is a settable test clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Fixture is a wired ledger over a fresh store.
type Fixture struct {
	*app.Services
	Store   *memory.Store
	Clock   *Clock
	Metrics *Metrics
}

// Option adjusts the fixture options.
type Option func(*app.Options)

// WithoutSettlementJournal disables the settlement batch.
func WithoutSettlementJournal() Option {
	return func(o *app.Options) { o.SettlementJournal = false }
}

// New builds a fixture with the default chart of accounts.
func New(t testing.TB, opts ...Option) *Fixture {
	t.Helper()

	store := memory.NewStore()
	for _, a := range ledger.DefaultAccounts() {
		require.NoError(t, store.Chart().UpsertAccount(context.Background(), a))
	}

	clock := &Clock{now: Today}
	metrics := &Metrics{}
	o := app.Options{
		BaseCurrency:      BaseCurrency,
		SettlementJournal: true,
		Metrics:           metrics,
		Clock:             clock.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Fixture{
		Services: app.New(app.MemoryStorage(store), o),
		Store:    store,
		Clock:    clock,
		Metrics:  metrics,
	}
}

// Line builds a line input from decimal strings.
func Line(qty, price, tax, discount string) invoice.LineInput {
	return invoice.LineInput{
		Description:  "item",
		Quantity:     types.MustMoney(qty),
		UnitPrice:    types.MustMoney(price),
		TaxRate:      types.MustMoney(tax),
		DiscountRate: types.MustMoney(discount),
	}
}

// SalesHeader is a base-currency sales invoice header dated Today.
func SalesHeader() invoice.Header {
	return invoice.Header{
		Direction:       invoice.DirectionSales,
		Type:            invoice.TypeInvoice,
		Date:            Today,
		DueDate:         Today.AddDate(0, 0, 30),
		CounterpartyRef: "CLI-001",
		Currency:        BaseCurrency,
	}
}

// CreateDraft creates a sales draft with lines.
func (f *Fixture) CreateDraft(t testing.TB, lines ...invoice.LineInput) invoice.Draft {
	t.Helper()
	d, err := f.Invoices.Create(context.Background(), SalesHeader(), lines)
	require.NoError(t, err)
	return d
}

// CreateValidated creates and validates a sales invoice.
func (f *Fixture) CreateValidated(t testing.TB, lines ...invoice.LineInput) invoice.Validated {
	t.Helper()
	d := f.CreateDraft(t, lines...)
	v, err := f.Invoices.Validate(context.Background(), d.Number())
	require.NoError(t, err)
	return v
}

// Money parses a decimal string.
func Money(s string) decimal.Decimal { return types.MustMoney(s) }

// Metrics counts metric observations.
type Metrics struct {
	mu         sync.Mutex
	Batches    map[string]int
	Payments   int
	Violations map[string]int
	Unbalanced int
	// Transitions counts invoice lifecycle events as "event/direction".
	Transitions map[string]int
	SettleDays  []float64
}

func (m *Metrics) InvoiceTransition(event, direction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Transitions == nil {
		m.Transitions = make(map[string]int)
	}
	m.Transitions[event+"/"+direction]++
}

func (m *Metrics) InvoiceSettled(_ string, days float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SettleDays = append(m.SettleDays, days)
}

// Transition returns the count of event for direction.
func (m *Metrics) Transition(event, direction string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Transitions[event+"/"+direction]
}

func (m *Metrics) BatchWritten(kind string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Batches == nil {
		m.Batches = make(map[string]int)
	}
	m.Batches[kind]++
}

func (m *Metrics) UnbalancedBatches(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unbalanced = count
}

func (m *Metrics) PaymentRecorded(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payments++
}

func (m *Metrics) ConsistencyViolation(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Violations == nil {
		m.Violations = make(map[string]int)
	}
	m.Violations[kind]++
}

// BatchCount returns the number of batches written of kind.
func (m *Metrics) BatchCount(kind ledger.BatchKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Batches[string(kind)]
}
