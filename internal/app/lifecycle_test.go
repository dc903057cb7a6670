package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/app/apptest"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/payment"
)

func TestLifecycleHooksFeedMetrics(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	paid := f.CreateValidated(t, apptest.Line("2", "1000", "18", "0"))
	cancelled := f.CreateValidated(t, apptest.Line("1", "500", "18", "0"))
	_, err := f.Invoices.Cancel(ctx, cancelled.Number(), "duplicate")
	require.NoError(t, err)

	f.Clock.Advance(10 * 24 * time.Hour)
	_, err = f.Payments.RecordPayment(ctx, paid.Number(), payment.Input{
		Amount: types.MustMoney("2360"),
		Mode:   payment.ModeTransfer,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, f.Metrics.Transition("after_validate", "sales"))
	assert.Equal(t, 1, f.Metrics.Transition("after_cancel", "sales"))
	assert.Equal(t, 1, f.Metrics.Transition("after_settle", "sales"))
	require.Len(t, f.Metrics.SettleDays, 1)
	assert.InDelta(t, 10, f.Metrics.SettleDays[0], 1)
}

func TestLifecycleHooksSkipRolledBackTransitions(t *testing.T) {
	f := apptest.New(t)
	ctx := context.Background()

	d := f.CreateDraft(t)
	_, err := f.Invoices.Validate(ctx, d.Number())
	require.Error(t, err, "a draft without lines does not validate")

	assert.Zero(t, f.Metrics.Transition("after_validate", "sales"))
}
