package ledger

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/numerator"
	"tradeledger/internal/core/tx"
	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/invoice"
	"tradeledger/pkg/logger"
)

var tracer = otel.Tracer("tradeledger/ledger")

// Metrics observes journal generation. A nil Metrics is allowed.
type Metrics interface {
	BatchWritten(kind string, lines int)
	UnbalancedBatches(count int)
}

// ServiceConfig holds the dependencies of Service.
type ServiceConfig struct {
	Repo      Repository
	Chart     ChartRepository
	Invoices  invoice.Reader
	Numerator numerator.Generator
	TxManager tx.LockingManager
	Audit     audit.Recorder
	Metrics   Metrics
	Clock     func() time.Time
}

// Service is the Journal Entry Generator.
//
// Every write takes the invoice lock and checks storage for an existing
// batch before generating, so a batch is written at most once per
// (reference, kind) even under concurrent callers.
type Service struct {
	repo      Repository
	chart     ChartRepository
	invoices  invoice.Reader
	numerator numerator.Generator
	txManager tx.LockingManager
	audit     audit.Recorder
	metrics   Metrics
	clock     func() time.Time
}

// NewService creates a journal generator.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repo,
		chart:     cfg.Chart,
		invoices:  cfg.Invoices,
		numerator: cfg.Numerator,
		txManager: cfg.TxManager,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// GenerateForInvoice returns the journal batch of a validated invoice,
// writing it if it does not exist yet.
func (s *Service) GenerateForInvoice(ctx context.Context, number string) (Batch, error) {
	ctx, span := tracer.Start(ctx, "ledger.GenerateForInvoice",
		trace.WithAttributes(attribute.String("invoice.number", number)))
	defer span.End()

	var out Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.txManager.Lock(ctx, invoice.LockKey(number)); err != nil {
			return fmt.Errorf("lock invoice %s: %w", number, err)
		}

		existing, found, err := s.findBatch(ctx, number, KindInvoice)
		if err != nil || found {
			out = existing
			return err
		}

		rec, err := s.invoices.GetByNumber(ctx, number)
		if err != nil {
			return err
		}
		st, err := invoice.FromRecord(rec)
		if err != nil {
			return err
		}
		v, ok := st.(invoice.Validated)
		if !ok {
			return apperror.NewInvalidState("invoice", number, string(st.Status()), "generate journal")
		}

		out, err = s.writeInvoiceBatch(ctx, v)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return Batch{}, err
	}
	return out, nil
}

// PostValidatedInvoice writes the batch of an invoice validated in the
// caller's transaction. It does nothing when the batch already exists.
func (s *Service) PostValidatedInvoice(ctx context.Context, inv invoice.Validated) error {
	ctx, span := tracer.Start(ctx, "ledger.PostValidatedInvoice",
		trace.WithAttributes(attribute.String("invoice.number", inv.Number())))
	defer span.End()

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.txManager.Lock(ctx, invoice.LockKey(inv.Number())); err != nil {
			return fmt.Errorf("lock invoice %s: %w", inv.Number(), err)
		}
		if _, found, err := s.findBatch(ctx, inv.Number(), KindInvoice); err != nil || found {
			return err
		}
		_, err := s.writeInvoiceBatch(ctx, inv)
		return err
	})
}

func (s *Service) writeInvoiceBatch(ctx context.Context, inv invoice.Validated) (Batch, error) {
	chart, err := s.loadChart(ctx)
	if err != nil {
		return Batch{}, err
	}
	batch, err := BuildInvoiceBatch(chart, inv, s.clock())
	if err != nil {
		return Batch{}, err
	}
	return s.write(ctx, batch)
}

// PostSettlement writes the settlement batch of a fully paid invoice.
// written is false when the batch already existed; the stored one is
// returned unchanged.
func (s *Service) PostSettlement(ctx context.Context, inv invoice.Validated, allocations []Allocation, date time.Time) (batch Batch, written bool, err error) {
	ref := SettlementReference(inv.Direction() == invoice.DirectionPurchase, inv.Number())

	ctx, span := tracer.Start(ctx, "ledger.PostSettlement",
		trace.WithAttributes(attribute.String("journal.reference", ref)))
	defer span.End()

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.txManager.Lock(ctx, invoice.LockKey(inv.Number())); err != nil {
			return fmt.Errorf("lock invoice %s: %w", inv.Number(), err)
		}
		existing, found, err := s.findBatch(ctx, ref, KindSettlement)
		if err != nil || found {
			batch = existing
			return err
		}

		chart, err := s.loadChart(ctx)
		if err != nil {
			return err
		}
		built, err := BuildSettlementBatch(chart, inv, allocations, date, s.clock())
		if err != nil {
			return err
		}
		batch, err = s.write(ctx, built)
		written = err == nil
		return err
	})
	if err != nil {
		span.RecordError(err)
		return Batch{}, false, err
	}
	return batch, written, nil
}

// ReverseInvoice writes the reversal of the journal batch of a cancelled
// invoice. It is idempotent.
func (s *Service) ReverseInvoice(ctx context.Context, number string) (Batch, error) {
	var out Batch
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.txManager.Lock(ctx, invoice.LockKey(number)); err != nil {
			return fmt.Errorf("lock invoice %s: %w", number, err)
		}

		rec, err := s.invoices.GetByNumber(ctx, number)
		if err != nil {
			return err
		}
		st, err := invoice.FromRecord(rec)
		if err != nil {
			return err
		}
		c, ok := st.(invoice.Cancelled)
		if !ok || !c.WasValidated() {
			return apperror.NewInvalidState("invoice", number, string(st.Status()), "reverse journal")
		}

		existing, found, err := s.findBatch(ctx, number, KindReversal)
		if err != nil || found {
			out = existing
			return err
		}

		original, found, err := s.findBatch(ctx, number, KindInvoice)
		if err != nil {
			return err
		}
		if !found {
			return apperror.NewConsistency("validated invoice has no journal batch").
				WithDetail("reference", number)
		}

		now := s.clock()
		out, err = s.write(ctx, BuildReversal(original, c.CancelledAt(), now))
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			EntityType: "journal_batch",
			EntityID:   out.ID,
			EntityKey:  number,
			Action:     audit.ActionReverse,
			Changes: map[string]any{
				"reverses": original.ID.String(),
				"debit":    out.TotalDebit.String(),
				"credit":   out.TotalCredit.String(),
			},
		})
	})
	if err != nil {
		return Batch{}, err
	}
	return out, nil
}

// EntriesByReference lists the entries of every batch carrying reference.
func (s *Service) EntriesByReference(ctx context.Context, reference string) ([]Entry, error) {
	return s.repo.EntriesByReference(ctx, reference)
}

// VerifyBalance re-sums every batch dated within [from, to]. Unbalanced
// batches are listed in the report and returned as a CONSISTENCY_ERROR.
func (s *Service) VerifyBalance(ctx context.Context, from, to time.Time) (VerifyReport, error) {
	totals, err := s.repo.BatchTotals(ctx, from, to)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("batch totals: %w", err)
	}

	report := VerifyReport{From: from, To: to, Batches: len(totals)}
	for _, t := range totals {
		if !t.Balanced() {
			report.Unbalanced = append(report.Unbalanced, t)
		}
	}
	if s.metrics != nil {
		s.metrics.UnbalancedBatches(len(report.Unbalanced))
	}
	if len(report.Unbalanced) == 0 {
		return report, nil
	}

	refs := make([]string, 0, len(report.Unbalanced))
	for _, t := range report.Unbalanced {
		refs = append(refs, t.Reference+"/"+string(t.Kind))
		logger.Error(ctx, "unbalanced journal batch",
			"reference", t.Reference,
			"kind", string(t.Kind),
			"debit", t.Debit.String(),
			"credit", t.Credit.String())
	}
	return report, apperror.NewConsistency("unbalanced journal batches found").
		WithDetail("batches", refs)
}

// UpsertAccount stores an account mapping row.
func (s *Service) UpsertAccount(ctx context.Context, a Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.chart.UpsertAccount(ctx, a)
}

// Accounts lists the account mapping.
func (s *Service) Accounts(ctx context.Context) ([]Account, error) {
	return s.chart.ListAccounts(ctx)
}

func (s *Service) loadChart(ctx context.Context) (*Chart, error) {
	accounts, err := s.chart.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chart of accounts: %w", err)
	}
	return NewChart(accounts), nil
}

func (s *Service) findBatch(ctx context.Context, ref string, kind BatchKind) (Batch, bool, error) {
	b, err := s.repo.FindBatch(ctx, ref, kind)
	switch {
	case err == nil:
		return b, true, nil
	case apperror.IsNotFound(err):
		return Batch{}, false, nil
	default:
		return Batch{}, false, fmt.Errorf("find batch %s/%s: %w", ref, kind, err)
	}
}

// write numbers the entries and stores the batch. If a concurrent writer
// got there first, its batch is returned.
func (s *Service) write(ctx context.Context, batch Batch) (Batch, error) {
	debit, credit := Sums(batch.Entries)
	if !debit.Equal(credit) {
		return Batch{}, apperror.NewConsistency("refusing to write an unbalanced batch").
			WithDetail("reference", batch.Reference).
			WithDetail("debit", debit.String()).
			WithDetail("credit", credit.String())
	}

	cfg := numerator.JournalEntryConfig()
	for i := range batch.Entries {
		n, err := s.numerator.GetNextNumber(ctx, cfg, numerator.DefaultOptions(), batch.Date)
		if err != nil {
			return Batch{}, fmt.Errorf("generate entry number: %w", err)
		}
		batch.Entries[i].EntryNumber = n
	}

	inserted, err := s.repo.InsertBatch(ctx, &batch)
	if err != nil {
		return Batch{}, fmt.Errorf("insert batch %s/%s: %w", batch.Reference, batch.Kind, err)
	}
	if !inserted {
		existing, err := s.repo.FindBatch(ctx, batch.Reference, batch.Kind)
		if err != nil {
			return Batch{}, fmt.Errorf("reload batch %s/%s: %w", batch.Reference, batch.Kind, err)
		}
		return existing, nil
	}

	if s.metrics != nil {
		s.metrics.BatchWritten(string(batch.Kind), len(batch.Entries))
	}
	logger.Info(ctx, "journal batch written",
		"reference", batch.Reference,
		"kind", string(batch.Kind),
		"journal", string(batch.Journal),
		"lines", len(batch.Entries),
		"debit", debit.String())
	return batch, nil
}
