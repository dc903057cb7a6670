package numerator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "tradeledger/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences for a single key.
type mockQuerier struct {
	mu    sync.Mutex
	value int64
	calls int
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	switch {
	case strings.Contains(sql, "current_val = $2\n"):
		m.value = args[1].(int64)
	case strings.Contains(sql, "+ $2"):
		m.value += args[1].(int64)
	default:
		m.value++
	}
	return &mockRow{val: m.value}
}

var march2024 = time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q, nil)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("FAC")

	num, err := svc.GetNextNumber(ctx, cfg, nil, march2024)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-00001", num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, march2024)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-00002", num)
}

func TestGetNextNumber_StrictUsesTransactionQuerier(t *testing.T) {
	pool := &mockQuerier{}
	tx := &mockQuerier{}
	svc := New(pool, func(context.Context) Querier { return tx })

	num, err := svc.GetNextNumber(context.Background(), corenumerator.JournalEntryConfig(), nil, march2024)
	require.NoError(t, err)
	assert.Equal(t, "202403-000001", num)
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, 0, pool.calls)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q, nil)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("REG")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	num, err := svc.GetNextNumber(ctx, cfg, opts, march2024)
	require.NoError(t, err)
	assert.Equal(t, "REG-2024-00001", num)
	assert.EqualValues(t, 10, q.value)

	num, err = svc.GetNextNumber(ctx, cfg, opts, march2024)
	require.NoError(t, err)
	assert.Equal(t, "REG-2024-00002", num)
	assert.Equal(t, 1, q.calls, "second number must come from memory")

	for i := 0; i < 8; i++ {
		_, err = svc.GetNextNumber(ctx, cfg, opts, march2024)
		require.NoError(t, err)
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, march2024)
	require.NoError(t, err)
	assert.Equal(t, "REG-2024-00011", num)
	assert.EqualValues(t, 20, q.value)
}

func TestSetNextNumber_InvalidatesCache(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q, nil)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("FAC")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	_, err := svc.GetNextNumber(ctx, cfg, opts, march2024)
	require.NoError(t, err)

	require.NoError(t, svc.SetNextNumber(ctx, cfg, march2024, 100))

	num, err := svc.GetNextNumber(ctx, cfg, opts, march2024)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-00101", num)
}
