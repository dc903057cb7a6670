package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/ledger":   "pgx5://u:p@localhost:5432/ledger",
		"postgresql://u@db/ledger?sslmode=false": "pgx5://u@db/ledger?sslmode=false",
		"pgx5://already":                         "pgx5://already",
	}
	for in, want := range tests {
		assert.Equal(t, want, DriverURL(in), in)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(files, "sql")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversRepositories(t *testing.T) {
	var schema strings.Builder
	entries, err := fs.ReadDir(files, "sql")
	require.NoError(t, err)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			b, err := fs.ReadFile(files, "sql/"+e.Name())
			require.NoError(t, err)
			schema.Write(b)
		}
	}

	for _, table := range []string{
		"invoices", "invoice_lines", "payments", "journal_batches", "journal_entries",
		"accounts", "exchange_rates", "sys_sequences", "sys_outbox", "sys_outbox_dlq",
		"sys_audit", "sys_idempotency",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE "+table+" (", table)
	}
	assert.Contains(t, schema.String(), "UNIQUE (reference, kind)")
}
