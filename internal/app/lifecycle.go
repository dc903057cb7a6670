package app

import (
	"context"

	"tradeledger/internal/domain"
	"tradeledger/internal/domain/invoice"
	"tradeledger/pkg/logger"
)

// LifecycleMetrics observes invoice state transitions.
type LifecycleMetrics interface {
	InvoiceTransition(event, direction string)
	// InvoiceSettled observes the days between invoice date and settlement.
	InvoiceSettled(direction string, days float64)
}

// observeLifecycle subscribes the metrics and the business log to the
// invoice hooks. Hooks run after commit, so rolled back transitions are
// never counted.
func observeLifecycle(hooks *domain.HookRegistry[invoice.State], m LifecycleMetrics) {
	transition := func(event domain.HookEvent) domain.Hook[invoice.State] {
		return func(ctx context.Context, st invoice.State) error {
			rec := st.Record()
			if m != nil {
				m.InvoiceTransition(string(event), string(rec.Direction))
			}
			logger.Info(ctx, "invoice transition",
				"event", string(event),
				"number", rec.Number,
				"direction", string(rec.Direction),
				"amount_ttc", rec.AmountTTC.String(),
				"currency", rec.Currency)
			return nil
		}
	}
	hooks.On(domain.AfterValidate, transition(domain.AfterValidate))
	hooks.On(domain.AfterCancel, transition(domain.AfterCancel))
	hooks.On(domain.AfterSettle, transition(domain.AfterSettle))

	if m == nil {
		return
	}
	hooks.On(domain.AfterSettle, func(_ context.Context, st invoice.State) error {
		rec := st.Record()
		if rec.SettledAt == nil {
			return nil
		}
		days := rec.SettledAt.Sub(rec.Date).Hours() / 24
		if days < 0 {
			days = 0
		}
		m.InvoiceSettled(string(rec.Direction), days)
		return nil
	})
}
