package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/numerator"
	"tradeledger/internal/core/tx"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/events"
	"tradeledger/pkg/logger"
)

// RateResolver resolves the exchange rate of a new invoice.
type RateResolver interface {
	Rate(ctx context.Context, from, to string, date time.Time) (currency.Quote, error)
}

// JournalPoster writes the journal batch of a freshly validated invoice
// inside the validating transaction. It must be idempotent.
type JournalPoster interface {
	PostValidatedInvoice(ctx context.Context, inv Validated) error
}

// ServiceConfig holds the dependencies of Service.
type ServiceConfig struct {
	Repo      Repository
	Numerator numerator.Generator
	TxManager tx.LockingManager
	Rates     RateResolver
	Journal   JournalPoster

	// Events and Audit default to no-ops.
	Events events.Publisher
	Audit  audit.Recorder

	// BaseCurrency is the accounting currency; invoices in it get rate 1.
	BaseCurrency string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service runs invoice operations, each in its own transaction.
type Service struct {
	repo         Repository
	numerator    numerator.Generator
	txManager    tx.LockingManager
	rates        RateResolver
	journal      JournalPoster
	events       events.Publisher
	audit        audit.Recorder
	baseCurrency string
	clock        func() time.Time
	hooks        *domain.HookRegistry[State]
}

// NewService creates an invoice service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:         cfg.Repo,
		numerator:    cfg.Numerator,
		txManager:    cfg.TxManager,
		rates:        cfg.Rates,
		journal:      cfg.Journal,
		events:       cfg.Events,
		audit:        cfg.Audit,
		baseCurrency: strings.ToUpper(cfg.BaseCurrency),
		clock:        cfg.Clock,
		hooks:        domain.NewHookRegistry[State](),
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

// Hooks returns the hook registry. Hooks run after commit.
func (s *Service) Hooks() *domain.HookRegistry[State] {
	return s.hooks
}

func (s *Service) runHooks(ctx context.Context, event domain.HookEvent, st State) {
	if err := s.hooks.Run(ctx, event, st); err != nil {
		logger.Warn(ctx, "invoice hook failed",
			"event", string(event),
			"number", st.Number(),
			"error", err)
	}
}

// Create stores a new draft. The number is allocated inside the creating
// transaction so a failed creation does not consume it.
// A missing date defaults to today and a missing currency to the base one.
func (s *Service) Create(ctx context.Context, h Header, lines []LineInput) (Draft, error) {
	h.Currency = strings.ToUpper(strings.TrimSpace(h.Currency))
	if h.Currency == "" {
		h.Currency = s.baseCurrency
	}
	if h.Date.IsZero() {
		h.Date = s.clock().UTC().Truncate(24 * time.Hour)
	}

	rate, err := s.resolveRate(ctx, h)
	if err != nil {
		return Draft{}, err
	}
	h.ExchangeRate = rate

	now := s.clock()
	actor := appctx.GetUserID(ctx)
	draft, err := NewDraft("", h, lines, now, actor)
	if err != nil {
		return Draft{}, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		cfg := NumberConfig(draft.rec.Direction, draft.rec.Type)
		number, err := s.numerator.GetNextNumber(ctx, cfg, numerator.DefaultOptions(), draft.rec.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}

		rec := draft.rec.clone()
		rec.Number = number
		if err := s.repo.Create(ctx, &rec); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		if err := s.repo.SaveLines(ctx, rec.ID, rec.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		draft = Draft{rec: rec}

		return s.audit.Record(ctx, audit.Entry{
			EntityType: events.AggregateInvoice,
			EntityID:   rec.ID,
			EntityKey:  rec.Number,
			Action:     audit.ActionCreate,
			Changes: map[string]any{
				"direction": rec.Direction,
				"type":      rec.Type,
				"currency":  rec.Currency,
				"amountTtc": rec.AmountTTC.String(),
			},
		})
	})
	if err != nil {
		return Draft{}, err
	}

	s.runHooks(ctx, domain.AfterCreate, draft)
	logger.Info(ctx, "invoice created",
		"id", draft.ID(),
		"number", draft.Number(),
		"lines", len(draft.rec.Lines))
	return draft, nil
}

func (s *Service) resolveRate(ctx context.Context, h Header) (decimal.Decimal, error) {
	if h.Currency == s.baseCurrency {
		return decimal.NewFromInt(1), nil
	}
	if h.ExchangeRate.IsPositive() {
		return h.ExchangeRate, nil
	}
	if s.rates == nil {
		return decimal.Decimal{}, apperror.NewConfiguration("no exchange rate source configured").
			WithDetail("currency", h.Currency)
	}
	q, err := s.rates.Rate(ctx, h.Currency, s.baseCurrency, h.Date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return q.Rate, nil
}

// Get returns the invoice in its current state.
func (s *Service) Get(ctx context.Context, number string) (State, error) {
	rec, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return FromRecord(rec)
}

// List returns a page of invoices.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[Record], error) {
	page := domain.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	return s.repo.List(ctx, filter)
}

// AddLine appends a line to a draft.
func (s *Service) AddLine(ctx context.Context, number string, in LineInput) (Draft, error) {
	return s.editDraft(ctx, number, "add line", func(d Draft) (Draft, error) {
		return d.AddLine(in)
	})
}

// RemoveLine removes a line from a draft.
func (s *Service) RemoveLine(ctx context.Context, number string, lineID id.ID) (Draft, error) {
	return s.editDraft(ctx, number, "remove line", func(d Draft) (Draft, error) {
		return d.RemoveLine(lineID)
	})
}

// UpdateLine patches a line of a draft.
func (s *Service) UpdateLine(ctx context.Context, number string, lineID id.ID, patch LinePatch) (Draft, error) {
	return s.editDraft(ctx, number, "update line", func(d Draft) (Draft, error) {
		return d.UpdateLine(lineID, patch)
	})
}

// UpdateHeader patches the header of a draft.
func (s *Service) UpdateHeader(ctx context.Context, number string, patch HeaderPatch) (Draft, error) {
	return s.editDraft(ctx, number, "update", func(d Draft) (Draft, error) {
		return d.UpdateHeader(patch)
	})
}

// PreviewTotals computes the totals of unsaved lines.
func (s *Service) PreviewTotals(inputs []LineInput) (Totals, []Line, error) {
	return PreviewTotals(inputs)
}

func (s *Service) editDraft(ctx context.Context, number, operation string, edit func(Draft) (Draft, error)) (Draft, error) {
	var out Draft
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.LockForUpdate(ctx, number)
		if err != nil {
			return err
		}
		d, ok := st.(Draft)
		if !ok {
			return NotDraft(st, operation)
		}

		next, err := edit(d)
		if err != nil {
			return err
		}
		next = next.Touched(s.clock(), appctx.GetUserID(ctx))

		rec := next.rec.clone()
		if err := s.repo.Update(ctx, &rec); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if err := s.repo.SaveLines(ctx, rec.ID, rec.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		out = Draft{rec: rec}

		return s.audit.Record(ctx, audit.Entry{
			EntityType: events.AggregateInvoice,
			EntityID:   rec.ID,
			EntityKey:  rec.Number,
			Action:     audit.ActionUpdate,
			Changes: map[string]any{
				"operation": operation,
				"amountHt":  rec.AmountHT.String(),
				"amountTtc": rec.AmountTTC.String(),
			},
		})
	})
	if err != nil {
		return Draft{}, err
	}
	return out, nil
}

// Validate moves a draft to validated and writes its journal batch in
// the same transaction.
func (s *Service) Validate(ctx context.Context, number string) (Validated, error) {
	var out Validated
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.LockForUpdate(ctx, number)
		if err != nil {
			return err
		}
		d, ok := st.(Draft)
		if !ok {
			return invalidState(st, "validate")
		}

		v, err := d.Validate(s.clock())
		if err != nil {
			return err
		}
		v = v.Touched(s.clock(), appctx.GetUserID(ctx))

		rec := v.rec.clone()
		if err := s.repo.Update(ctx, &rec); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		v = Validated{rec: rec}

		if err := s.journal.PostValidatedInvoice(ctx, v); err != nil {
			return err
		}
		if err := s.events.Publish(ctx, invoiceEvent(events.InvoiceValidated, rec, *rec.ValidatedAt)); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		out = v

		return s.audit.Record(ctx, audit.Entry{
			EntityType: events.AggregateInvoice,
			EntityID:   rec.ID,
			EntityKey:  rec.Number,
			Action:     audit.ActionValidate,
			Changes: map[string]any{
				"status":    StatusValidated,
				"amountHt":  rec.AmountHT.String(),
				"amountTax": rec.AmountTax.String(),
				"amountTtc": rec.AmountTTC.String(),
			},
		})
	})
	if err != nil {
		return Validated{}, err
	}

	s.runHooks(ctx, domain.AfterValidate, out)
	logger.Info(ctx, "invoice validated",
		"number", out.Number(),
		"amount_ttc", out.rec.AmountTTC.String(),
		"currency", out.rec.Currency)
	return out, nil
}

// Cancel cancels a draft or validated invoice. The journal batch of a
// validated invoice is kept; corrections go through a reversal batch.
func (s *Service) Cancel(ctx context.Context, number, reason string) (Cancelled, error) {
	var out Cancelled
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.LockForUpdate(ctx, number)
		if err != nil {
			return err
		}

		now := s.clock()
		var c Cancelled
		switch cur := st.(type) {
		case Draft:
			c = cur.Cancel(now, reason)
		case Validated:
			c = cur.Cancel(now, reason)
		default:
			return invalidState(st, "cancel")
		}
		c.rec.BaseDocument = c.rec.Touched(now, appctx.GetUserID(ctx))

		rec := c.rec.clone()
		if err := s.repo.Update(ctx, &rec); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		out = Cancelled{rec: rec}

		if err := s.events.Publish(ctx, invoiceEvent(events.InvoiceCancelled, rec, now)); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		return s.audit.Record(ctx, audit.Entry{
			EntityType: events.AggregateInvoice,
			EntityID:   rec.ID,
			EntityKey:  rec.Number,
			Action:     audit.ActionCancel,
			Changes: map[string]any{
				"from":   st.Status(),
				"reason": reason,
			},
		})
	})
	if err != nil {
		return Cancelled{}, err
	}

	s.runHooks(ctx, domain.AfterCancel, out)
	logger.Info(ctx, "invoice cancelled", "number", out.Number(), "reason", reason)
	return out, nil
}

// LockForUpdate takes the invoice lock and loads the invoice. It must be
// called inside a transaction; the lock is held until it ends.
func (s *Service) LockForUpdate(ctx context.Context, number string) (State, error) {
	if err := s.txManager.Lock(ctx, LockKey(number)); err != nil {
		return nil, fmt.Errorf("lock invoice %s: %w", number, err)
	}
	return s.Get(ctx, number)
}

// MarkSettled sets the settled overlay of a validated invoice inside the
// caller's transaction. changed is false when it was already settled.
func (s *Service) MarkSettled(ctx context.Context, number string) (v Validated, changed bool, err error) {
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.LockForUpdate(ctx, number)
		if err != nil {
			return err
		}
		cur, ok := st.(Validated)
		if !ok {
			return invalidState(st, "settle")
		}
		if cur.IsSettled() {
			v = cur
			return nil
		}

		now := s.clock()
		next := cur.Settle(now).Touched(now, appctx.GetUserID(ctx))
		rec := next.rec.clone()
		if err := s.repo.Update(ctx, &rec); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		v, changed = Validated{rec: rec}, true

		if err := s.events.Publish(ctx, invoiceEvent(events.InvoiceSettled, rec, now)); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		return s.audit.Record(ctx, audit.Entry{
			EntityType: events.AggregateInvoice,
			EntityID:   rec.ID,
			EntityKey:  rec.Number,
			Action:     audit.ActionSettle,
			Changes:    map[string]any{"settledAt": now.UTC()},
		})
	})
	if err != nil {
		return Validated{}, false, err
	}
	return v, changed, nil
}

// NotifySettled runs the after-settle hooks. The settling component calls
// it once its transaction has committed.
func (s *Service) NotifySettled(ctx context.Context, v Validated) {
	s.runHooks(ctx, domain.AfterSettle, v)
	logger.Info(ctx, "invoice settled", "number", v.Number())
}

func invoiceEvent(eventType string, rec Record, at time.Time) events.Event {
	return events.Event{
		AggregateType: events.AggregateInvoice,
		AggregateID:   rec.ID,
		Type:          eventType,
		Payload: events.InvoicePayload{
			Number:          rec.Number,
			Direction:       string(rec.Direction),
			Type:            string(rec.Type),
			CounterpartyRef: rec.CounterpartyRef,
			Currency:        rec.Currency,
			AmountTTC:       rec.AmountTTC,
			OccurredAt:      at.UTC(),
		},
	}
}
