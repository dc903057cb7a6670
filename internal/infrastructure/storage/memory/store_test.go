package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/numerator"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
)

var errBoom = errors.New("boom")

func TestStore_RollbackUndoesWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	cfg := numerator.DefaultConfig("FAC")
	period := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := s.Numerator().GetNextNumber(ctx, cfg, nil, period)
		require.NoError(t, err)
		assert.Equal(t, "FAC-2024-00001", n)

		require.NoError(t, s.Outbox().Publish(ctx, events.Event{Type: events.InvoiceValidated}))
		inserted, err := s.Journal().InsertBatch(ctx, &ledger.Batch{Reference: "FAC-2024-00001", Kind: ledger.KindInvoice})
		require.NoError(t, err)
		assert.True(t, inserted)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	assert.Empty(t, s.Outbox().Events())
	assert.Empty(t, s.Journal().Batches())

	n, err := s.Numerator().GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-00001", n)
}

func TestStore_NestedTransactionJoinsOuter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.Outbox().Publish(ctx, events.Event{Type: events.PaymentRecorded})
		}))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, s.Outbox().Events(), "inner writes roll back with the outer transaction")
}

func TestStore_InsertBatchIsUniquePerReferenceAndKind(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	inserted, err := s.Journal().InsertBatch(ctx, &ledger.Batch{Reference: "FAC-1", Kind: ledger.KindInvoice})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Journal().InsertBatch(ctx, &ledger.Batch{Reference: "FAC-1", Kind: ledger.KindInvoice})
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = s.Journal().InsertBatch(ctx, &ledger.Batch{Reference: "FAC-1", Kind: ledger.KindReversal})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestStore_Lock(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.ErrorIs(t, s.Lock(ctx, "invoice:A"), ErrNoTransaction)

	require.NoError(t, s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Lock(ctx, "invoice:A"))
		return s.Lock(ctx, "invoice:A")
	}), "locking twice in one transaction must not deadlock")

	var inside atomic.Int32
	release := make(chan struct{})
	locked := make(chan struct{})
	go func() {
		_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
			assert.NoError(t, s.Lock(ctx, "invoice:A"))
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	done := make(chan struct{})
	go func() {
		_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
			if err := s.Lock(ctx, "invoice:A"); err != nil {
				return err
			}
			inside.Add(1)
			return nil
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, inside.Load(), "second transaction must wait for the lock")
	close(release)
	<-done
	assert.Equal(t, int32(1), inside.Load())
}

func TestStore_PanicRollsBackAndReleasesLocks(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	assert.PanicsWithValue(t, "journal generator failed", func() {
		_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, s.Lock(ctx, "invoice:FAC-2024-00001"))
			_, err := s.Journal().InsertBatch(ctx, &ledger.Batch{Reference: "FAC-2024-00001", Kind: ledger.KindInvoice})
			require.NoError(t, err)
			panic("journal generator failed")
		})
	})
	assert.Empty(t, s.Journal().Batches(), "writes of a panicking transaction are undone")

	done := make(chan error, 1)
	go func() {
		done <- s.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.Lock(ctx, "invoice:FAC-2024-00001")
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("invoice lock still held after the panicking transaction unwound")
	}
}
