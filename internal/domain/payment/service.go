package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/numerator"
	"tradeledger/internal/core/tx"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/domain/ledger"
	"tradeledger/pkg/logger"
)

// Invoices is the part of the invoice service the engine relies on.
type Invoices interface {
	Get(ctx context.Context, number string) (invoice.State, error)
	LockForUpdate(ctx context.Context, number string) (invoice.State, error)
	MarkSettled(ctx context.Context, number string) (invoice.Validated, bool, error)
	NotifySettled(ctx context.Context, v invoice.Validated)
}

// Journal writes settlement batches.
type Journal interface {
	PostSettlement(ctx context.Context, inv invoice.Validated, allocations []ledger.Allocation, date time.Time) (ledger.Batch, bool, error)
}

// RateResolver converts payment currencies into invoice currencies.
type RateResolver interface {
	Rate(ctx context.Context, from, to string, date time.Time) (currency.Quote, error)
}

// Metrics observes the engine. A nil Metrics is allowed.
type Metrics interface {
	PaymentRecorded(mode string)
	ConsistencyViolation(kind string)
}

// NumberConfig is the payment numbering sequence.
var NumberConfig = numerator.DefaultConfig("REG")

// ServiceConfig holds the dependencies of Service.
type ServiceConfig struct {
	Repo      Repository
	Invoices  Invoices
	Journal   Journal
	Rates     RateResolver
	Numerator numerator.Generator
	TxManager tx.Manager
	Events    events.Publisher
	Audit     audit.Recorder
	Metrics   Metrics

	// SettlementJournal enables the settlement batch.
	SettlementJournal bool

	Clock func() time.Time
}

// Service is the Payment Reconciliation Engine.
type Service struct {
	repo              Repository
	invoices          Invoices
	journal           Journal
	rates             RateResolver
	numerator         numerator.Generator
	txManager         tx.Manager
	events            events.Publisher
	audit             audit.Recorder
	metrics           Metrics
	settlementJournal bool
	clock             func() time.Time
}

// NewService creates the engine.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:              cfg.Repo,
		invoices:          cfg.Invoices,
		journal:           cfg.Journal,
		rates:             cfg.Rates,
		numerator:         cfg.Numerator,
		txManager:         cfg.TxManager,
		events:            cfg.Events,
		audit:             cfg.Audit,
		metrics:           cfg.Metrics,
		settlementJournal: cfg.SettlementJournal,
		clock:             cfg.Clock,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// RecordPayment records a payment against a validated invoice.
//
// The payment is rejected with OVERPAYMENT when it would take the paid sum
// beyond the invoice total. When the paid sum reaches the total the
// invoice is marked settled and, if enabled, the settlement batch is
// written, all in the same transaction.
func (s *Service) RecordPayment(ctx context.Context, invoiceNumber string, in Input) (Payment, error) {
	in.normalize(s.clock())
	if err := in.validate(); err != nil {
		return Payment{}, withInvoice(err, invoiceNumber)
	}

	var (
		out     Payment
		settled *invoice.Validated
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		inv, err := s.lockValidated(ctx, invoiceNumber, "record payment")
		if err != nil {
			return err
		}
		existing, err := s.repo.ListByInvoice(ctx, invoiceNumber)
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		if err := checkDuplicateReference(existing, invoiceNumber, in.Reference); err != nil {
			return err
		}

		if in.Currency == "" {
			in.Currency = inv.Currency()
		}
		rate, err := s.conversionRate(ctx, in, inv.Currency())
		if err != nil {
			return err
		}
		converted := types.Convert(in.Amount, rate)
		if err := checkOverpayment(inv, existing, converted); err != nil {
			return err
		}

		number, err := s.numerator.GetNextNumber(ctx, NumberConfig, numerator.DefaultOptions(), in.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}

		now := s.clock()
		p := Payment{
			BaseDocument:          entity.NewBaseDocument(now, appctx.GetUserID(ctx)),
			Number:                number,
			InvoiceNumber:         invoiceNumber,
			Date:                  in.Date,
			Amount:                in.Amount,
			Currency:              in.Currency,
			ExchangeRate:          rate,
			AmountInvoiceCurrency: converted,
			Mode:                  in.Mode,
			Reference:             in.Reference,
			Status:                StatusValidated,
		}
		if in.Pending {
			p.Status = StatusPending
		} else {
			at := now.UTC()
			p.ConfirmedAt = &at
		}
		if err := s.repo.Create(ctx, &p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		out = p

		if err := s.events.Publish(ctx, paymentEvent(events.PaymentRecorded, p, now)); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		if err := s.audit.Record(ctx, audit.Entry{
			EntityType: events.AggregatePayment,
			EntityID:   p.ID,
			EntityKey:  p.Number,
			Action:     audit.ActionRecordPayment,
			Changes: map[string]any{
				"invoice":               invoiceNumber,
				"amount":                p.Amount.String(),
				"currency":              p.Currency,
				"amountInvoiceCurrency": converted.String(),
				"status":                p.Status,
			},
		}); err != nil {
			return err
		}

		if p.Status != StatusValidated {
			return nil
		}
		settled, err = s.settleIfPaid(ctx, inv, append(existing, p), p.Date)
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	if s.metrics != nil {
		s.metrics.PaymentRecorded(string(out.Mode))
	}
	logger.Info(ctx, "payment recorded",
		"number", out.Number,
		"invoice", invoiceNumber,
		"amount", out.Amount.String(),
		"currency", out.Currency,
		"status", string(out.Status))
	if settled != nil {
		s.invoices.NotifySettled(ctx, *settled)
	}
	return out, nil
}

// ConfirmPayment validates a pending payment. The overpayment check runs
// again against the current paid sum.
func (s *Service) ConfirmPayment(ctx context.Context, paymentNumber string) (Payment, error) {
	var (
		out     Payment
		settled *invoice.Validated
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, inv, payments, err := s.lockPayment(ctx, paymentNumber)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			return apperror.NewInvalidState("payment", p.Number, string(p.Status), "confirm")
		}
		v, ok := inv.(invoice.Validated)
		if !ok {
			return invalidInvoice(inv, "confirm payment")
		}
		if err := checkOverpayment(v, payments, p.AmountInvoiceCurrency); err != nil {
			return err
		}

		now := s.clock()
		at := now.UTC()
		p.Status = StatusValidated
		p.ConfirmedAt = &at
		p.BaseDocument = p.Touched(now, appctx.GetUserID(ctx))
		if err := s.repo.Update(ctx, &p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		out = p

		if err := s.audit.Record(ctx, audit.Entry{
			EntityType: events.AggregatePayment,
			EntityID:   p.ID,
			EntityKey:  p.Number,
			Action:     audit.ActionConfirm,
			Changes:    map[string]any{"status": p.Status},
		}); err != nil {
			return err
		}

		for i := range payments {
			if payments[i].Number == p.Number {
				payments[i] = p
			}
		}
		settled, err = s.settleIfPaid(ctx, v, payments, p.Date)
		return err
	})
	if err != nil {
		return Payment{}, err
	}

	logger.Info(ctx, "payment confirmed", "number", out.Number, "invoice", out.InvoiceNumber)
	if settled != nil {
		s.invoices.NotifySettled(ctx, *settled)
	}
	return out, nil
}

// CancelPayment flips a payment to cancelled. A validated payment of a
// settled invoice cannot be cancelled.
func (s *Service) CancelPayment(ctx context.Context, paymentNumber, reason string) (Payment, error) {
	var out Payment
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, inv, _, err := s.lockPayment(ctx, paymentNumber)
		if err != nil {
			return err
		}
		if p.Status == StatusCancelled {
			return apperror.NewInvalidState("payment", p.Number, string(p.Status), "cancel")
		}
		if v, ok := inv.(invoice.Validated); ok && v.IsSettled() && p.Status == StatusValidated {
			return apperror.NewInvalidState("payment", p.Number, string(p.Status), "cancel").
				WithDetail("invoice", v.Number()).
				WithDetail("reason", "invoice is settled")
		}

		now := s.clock()
		at := now.UTC()
		from := p.Status
		p.Status = StatusCancelled
		p.CancelledAt = &at
		p.CancelReason = reason
		p.BaseDocument = p.Touched(now, appctx.GetUserID(ctx))
		if err := s.repo.Update(ctx, &p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		out = p

		if err := s.events.Publish(ctx, paymentEvent(events.PaymentCancelled, p, now)); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		return s.audit.Record(ctx, audit.Entry{
			EntityType: events.AggregatePayment,
			EntityID:   p.ID,
			EntityKey:  p.Number,
			Action:     audit.ActionCancel,
			Changes:    map[string]any{"from": from, "reason": reason},
		})
	})
	if err != nil {
		return Payment{}, err
	}

	logger.Info(ctx, "payment cancelled", "number", out.Number, "invoice", out.InvoiceNumber, "reason", reason)
	return out, nil
}

// GetOutstandingBalance returns the invoice total minus its validated
// payments, never negative.
func (s *Service) GetOutstandingBalance(ctx context.Context, invoiceNumber string) (Balance, error) {
	st, err := s.invoices.Get(ctx, invoiceNumber)
	if err != nil {
		return Balance{}, err
	}
	payments, err := s.repo.ListByInvoice(ctx, invoiceNumber)
	if err != nil {
		return Balance{}, fmt.Errorf("list payments: %w", err)
	}

	rec := st.Record()
	b := Balance{
		InvoiceNumber: invoiceNumber,
		Currency:      rec.Currency,
		Total:         rec.AmountTTC,
		Paid:          types.Round2(PaidSum(payments)),
	}
	b.Outstanding = b.Total.Sub(b.Paid)
	if b.Outstanding.IsNegative() {
		logger.Error(ctx, "payments exceed invoice total",
			"invoice", invoiceNumber,
			"total", b.Total.String(),
			"paid", b.Paid.String())
		if s.metrics != nil {
			s.metrics.ConsistencyViolation("negative_balance")
		}
		b.Outstanding = types.Zero()
		b.Inconsistent = true
	}
	if v, ok := st.(invoice.Validated); ok {
		b.Settled = v.IsSettled()
	}
	return b, nil
}

// ListPayments lists the payments of an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceNumber string) ([]Payment, error) {
	if _, err := s.invoices.Get(ctx, invoiceNumber); err != nil {
		return nil, err
	}
	return s.repo.ListByInvoice(ctx, invoiceNumber)
}

// GetPayment returns one payment.
func (s *Service) GetPayment(ctx context.Context, number string) (Payment, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) lockValidated(ctx context.Context, number, operation string) (invoice.Validated, error) {
	st, err := s.invoices.LockForUpdate(ctx, number)
	if err != nil {
		return invoice.Validated{}, err
	}
	v, ok := st.(invoice.Validated)
	if !ok {
		return invoice.Validated{}, invalidInvoice(st, operation)
	}
	return v, nil
}

// lockPayment locks the invoice of a payment and reloads the payment
// under the lock.
func (s *Service) lockPayment(ctx context.Context, number string) (Payment, invoice.State, []Payment, error) {
	p, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return Payment{}, nil, nil, err
	}
	inv, err := s.invoices.LockForUpdate(ctx, p.InvoiceNumber)
	if err != nil {
		return Payment{}, nil, nil, err
	}
	payments, err := s.repo.ListByInvoice(ctx, p.InvoiceNumber)
	if err != nil {
		return Payment{}, nil, nil, fmt.Errorf("list payments: %w", err)
	}
	for _, cur := range payments {
		if cur.Number == number {
			return cur, inv, payments, nil
		}
	}
	return Payment{}, nil, nil, apperror.NewNotFound("payment", number)
}

func (s *Service) conversionRate(ctx context.Context, in Input, invoiceCurrency string) (types.Rate, error) {
	if in.Currency == invoiceCurrency {
		return decimal.NewFromInt(1), nil
	}
	if in.ExchangeRate.IsPositive() {
		return in.ExchangeRate, nil
	}
	if s.rates == nil {
		return types.Zero(), apperror.NewConfiguration("no exchange rate source configured").
			WithDetail("from", in.Currency).
			WithDetail("to", invoiceCurrency)
	}
	q, err := s.rates.Rate(ctx, in.Currency, invoiceCurrency, in.Date)
	if err != nil {
		return types.Zero(), err
	}
	return q.Rate, nil
}

// settleIfPaid marks the invoice settled and writes the settlement batch
// once the validated payments reach the total. It returns the settled
// invoice when this call settled it.
func (s *Service) settleIfPaid(ctx context.Context, inv invoice.Validated, payments []Payment, date time.Time) (*invoice.Validated, error) {
	total := inv.Totals().AmountTTC
	if !types.EqualCents(PaidSum(payments), total) {
		return nil, nil
	}

	v, changed, err := s.invoices.MarkSettled(ctx, inv.Number())
	if err != nil {
		return nil, err
	}

	if s.settlementJournal && s.journal != nil {
		var allocations []ledger.Allocation
		for _, p := range payments {
			if p.Status != StatusValidated {
				continue
			}
			allocations = append(allocations, ledger.Allocation{
				PaymentNumber: p.Number,
				Amount:        p.AmountInvoiceCurrency,
				Cash:          p.Mode == ModeCash,
			})
		}
		if _, _, err := s.journal.PostSettlement(ctx, v, allocations, date); err != nil {
			return nil, err
		}
	}

	if !changed {
		return nil, nil
	}
	return &v, nil
}

func checkOverpayment(inv invoice.Validated, payments []Payment, amount types.Money) error {
	total := inv.Totals().AmountTTC
	maxAcceptable := total.Sub(types.Round2(PaidSum(payments)))
	if maxAcceptable.IsNegative() {
		maxAcceptable = types.Zero()
	}
	if types.Round2(amount).GreaterThan(maxAcceptable) {
		return apperror.NewOverpayment(inv.Number(), amount, maxAcceptable)
	}
	return nil
}

func checkDuplicateReference(payments []Payment, invoiceNumber, reference string) error {
	if reference == "" {
		return nil
	}
	for _, p := range payments {
		if p.Status != StatusCancelled && p.Reference == reference {
			return apperror.NewDuplicate("payment", "reference", reference).
				WithDetail("invoice", invoiceNumber).
				WithDetail("payment", p.Number)
		}
	}
	return nil
}

func invalidInvoice(st invoice.State, operation string) error {
	return apperror.NewInvalidState("invoice", st.Number(), string(st.Status()), operation)
}

func withInvoice(err error, number string) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.WithDetail("invoice", number)
	}
	return err
}

func paymentEvent(eventType string, p Payment, at time.Time) events.Event {
	return events.Event{
		AggregateType: events.AggregatePayment,
		AggregateID:   p.ID,
		Type:          eventType,
		Payload: events.PaymentPayload{
			Number:        p.Number,
			InvoiceNumber: p.InvoiceNumber,
			Mode:          string(p.Mode),
			Amount:        p.Amount,
			Currency:      p.Currency,
			OccurredAt:    at.UTC(),
		},
	}
}
