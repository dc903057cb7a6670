package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/pkg/logger"
)

type deliveries struct {
	ok, failed map[string]int
}

func (d *deliveries) OutboxDelivered(eventType string, ok bool) {
	if ok {
		d.ok[eventType]++
		return
	}
	d.failed[eventType]++
}

func message(t *testing.T, eventType string, payload any) *postgres.OutboxMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &postgres.OutboxMessage{ID: id.New(), EventType: eventType, Payload: raw}
}

func TestNotifier_Handle(t *testing.T) {
	d := &deliveries{ok: map[string]int{}, failed: map[string]int{}}
	n := NewNotifier(d)
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, message(t, events.InvoiceValidated, events.InvoicePayload{
		Number: "FAC-2024-00001", AmountTTC: types.MustMoney("118"), Currency: "XOF",
	})))
	require.NoError(t, n.Handle(ctx, message(t, events.PaymentRecorded, events.PaymentPayload{
		Number: "REG-2024-00001", InvoiceNumber: "FAC-2024-00001", Amount: types.MustMoney("118"),
	})))
	require.NoError(t, n.Handle(ctx, message(t, "something.else", map[string]any{})))

	bad := &postgres.OutboxMessage{ID: id.New(), EventType: events.InvoiceSettled, Payload: []byte("{")}
	assert.Error(t, n.Handle(ctx, bad))

	assert.Equal(t, 1, d.ok[events.InvoiceValidated])
	assert.Equal(t, 1, d.ok[events.PaymentRecorded])
	assert.Equal(t, 1, d.failed[events.InvoiceSettled])
}

func TestNotifier_NilMetrics(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.Handle(context.Background(), message(t, events.InvoiceCancelled, events.InvoicePayload{})))
}

type fakeRelay struct {
	batches []int
	calls   int
	err     error
	moved   int64
}

func (r *fakeRelay) ProcessBatch(context.Context) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.calls >= len(r.batches) {
		r.calls++
		return 0, nil
	}
	n := r.batches[r.calls]
	r.calls++
	return n, nil
}

func (r *fakeRelay) MoveToDLQ(context.Context) (int64, error) { return r.moved, nil }

type fakeCleaner struct{ calls int }

func (c *fakeCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls++
	return 3, nil
}

func newWorker(r Relay, c Cleaner) *Worker {
	return &Worker{relay: r, idempotency: c, pollInterval: time.Millisecond, log: logger.NewNop()}
}

func TestWorker_DrainStopsWhenEmpty(t *testing.T) {
	r := &fakeRelay{batches: []int{50, 50, 7}}
	newWorker(r, &fakeCleaner{}).drain(context.Background())
	assert.Equal(t, 4, r.calls)
}

func TestWorker_DrainStopsOnError(t *testing.T) {
	r := &fakeRelay{err: errors.New("db down")}
	newWorker(r, &fakeCleaner{}).drain(context.Background())
	assert.Equal(t, 0, r.calls)
}

func TestWorker_Maintain(t *testing.T) {
	c := &fakeCleaner{}
	newWorker(&fakeRelay{moved: 2}, c).maintain(context.Background())
	assert.Equal(t, 1, c.calls)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newWorker(&fakeRelay{}, &fakeCleaner{}).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
