package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/app"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/infrastructure/storage/memory"
)

func TestRunDemo(t *testing.T) {
	var out bytes.Buffer
	now := func() time.Time { return time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, runDemo(context.Background(), &out, "XOF", now))

	s := out.String()
	assert.Contains(t, s, "FAC-2024-00001 validated")
	assert.Contains(t, s, "settled=true")
	assert.Contains(t, s, "FAF-2024-00001 validated at rate 655.957")
	assert.Contains(t, s, "overpayment refused: OVERPAYMENT")
	assert.Contains(t, s, "0 unbalanced")
}

func TestParseRateSpec(t *testing.T) {
	r, err := parseRateSpec("EUR:XOF:655.957:2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "EUR", r.Source)
	assert.Equal(t, "XOF", r.Target)
	assert.Equal(t, "655.957", r.Rate.String())
	assert.Equal(t, "2024-01-01", r.EffectiveDate.Format(time.DateOnly))
	assert.True(t, r.Active)

	r, err = parseRateSpec("USD:XOF:600")
	require.NoError(t, err)
	assert.False(t, r.EffectiveDate.IsZero())

	for _, bad := range []string{"EUR:XOF", "EUR:XOF:abc", "EUR:XOF:1:03/01/2024", "a:b:c:d:e"} {
		_, err := parseRateSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestVerifyRange(t *testing.T) {
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	from, to, err := verifyRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, now, to)

	_, _, err = verifyRange("2024-05-01", "2024-04-01", now)
	assert.Error(t, err)

	_, _, err = verifyRange("yesterday", "", now)
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"migrate", "up"}, {"migrate", "down"}, {"seed"}, {"verify"}, {"token"}, {"counter"}, {"demo"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestParseCounterArgs(t *testing.T) {
	cfg, at, last, err := parseCounterArgs([]string{"fac", "2024-03-01", "1520"})
	require.NoError(t, err)
	assert.Equal(t, "FAC", cfg.Prefix)
	assert.Equal(t, 2024, at.Year())
	assert.Equal(t, int64(1520), last)

	cfg, _, _, err = parseCounterArgs([]string{"JE", "2024-03-01", "0"})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.PadWidth)

	for _, bad := range [][]string{{"XYZ", "2024-03-01", "1"}, {"FAC", "March", "1"}, {"FAC", "2024-03-01", "-4"}} {
		_, _, _, err := parseCounterArgs(bad)
		assert.Error(t, err, bad)
	}
}

func TestCounterContinuesMemorySequence(t *testing.T) {
	ctx := context.Background()
	svc := app.New(app.MemoryStorage(memory.NewStore()), app.Options{BaseCurrency: "XOF"})
	cfg, at, last, err := parseCounterArgs([]string{"FAC", "2024-01-01", "1520"})
	require.NoError(t, err)
	require.NoError(t, svc.Numbers.SetNextNumber(ctx, cfg, at, last))

	draft, err := svc.Invoices.Create(ctx, invoice.Header{
		Direction:       invoice.DirectionSales,
		Type:            invoice.TypeInvoice,
		Date:            time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		CounterpartyRef: "CLI-001",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2024-01521", draft.Number())
}
