// Package entity provides the persistence headers shared by ledger records.
package entity

import (
	"time"

	"tradeledger/internal/core/id"
)

// BaseEntity contains the identity and optimistic-lock version of a
// mutable record (invoices while draft, payments while pending).
type BaseEntity struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	return BaseEntity{
		ID:      id.New(),
		Version: 1,
	}
}

// BaseDocument extends BaseEntity with audit fields.
type BaseDocument struct {
	BaseEntity

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewBaseDocument creates a new BaseDocument stamped at now by actor.
func NewBaseDocument(now time.Time, actor string) BaseDocument {
	now = now.UTC()
	return BaseDocument{
		BaseEntity: NewBaseEntity(),
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
}

// Touched returns a copy stamped as modified at now by actor.
// The version is bumped by the repository, not here.
func (b BaseDocument) Touched(now time.Time, actor string) BaseDocument {
	b.UpdatedAt = now.UTC()
	if actor != "" {
		b.UpdatedBy = actor
	}
	return b
}
