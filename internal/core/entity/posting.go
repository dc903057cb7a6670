package entity

import (
	"time"

	"tradeledger/internal/core/id"
)

// PostingBase contains the fields common to append-only ledger rows.
// Rows carrying it are never updated or deleted; a correction is a new
// row in a new batch.
type PostingBase struct {
	// LineID identifies this row (UUIDv7)
	LineID id.ID `db:"line_id" json:"lineId"`

	// BatchID groups rows written by one generation event
	BatchID id.ID `db:"batch_id" json:"batchId"`

	// Period is the accounting date of the row
	Period time.Time `db:"period" json:"period"`

	// CreatedAt is when the row was written
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewPostingBase creates a row header for batchID dated period.
func NewPostingBase(batchID id.ID, period, now time.Time) PostingBase {
	return PostingBase{
		LineID:    id.New(),
		BatchID:   batchID,
		Period:    period,
		CreatedAt: now.UTC(),
	}
}
