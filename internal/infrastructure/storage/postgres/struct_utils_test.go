package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
)

type sampleDoc struct {
	entity.BaseDocument
	Number string      `db:"number"`
	Amount types.Money `db:"amount"`
	Lines  []string    `db:"-"`
	Note   string
}

func TestExtractDBColumns_IncludesEmbedded(t *testing.T) {
	cols := ExtractDBColumns[sampleDoc]()

	for _, want := range []string{"id", "version", "created_at", "updated_at", "created_by", "updated_by", "number", "amount"} {
		assert.Contains(t, cols, want)
	}
	assert.NotContains(t, cols, "-")
	assert.NotContains(t, cols, "Note")
	assert.Equal(t, []string{"number", "amount"}, cols[len(cols)-2:])
}

func TestStructToMap(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	doc := sampleDoc{
		BaseDocument: entity.NewBaseDocument(now, "alice"),
		Number:       "FAC-2024-00001",
		Amount:       types.MustMoney("3392400"),
		Lines:        []string{"ignored"},
	}

	m := StructToMap(&doc)

	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, 1, m["version"])
	assert.Equal(t, "alice", m["created_by"])
	assert.Equal(t, "FAC-2024-00001", m["number"])
	assert.Equal(t, "3392400", m["amount"].(types.Money).String())
	assert.NotContains(t, m, "Lines")
	assert.False(t, id.IsNil(m["id"].(id.ID)))

	assert.Equal(t, map[string]any{"number": "FAC-2024-00001"}, Pick(doc, "number", "missing"))
}
