// Package id provides identities for ledger records.
// Random identities are UUIDv7 (time-ordered); derived identities are
// name-based so that retries of the same operation produce the same id.
package id

import (
	"github.com/google/uuid"

	"tradeledger/internal/core/apperror"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// namespace scopes every derived identity of this application.
var namespace = uuid.MustParse("6f1c2b8e-3d4a-5b7c-9e10-a2b3c4d5e6f7")

// New generates a new UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Derive returns the same identity for the same parts, e.g.
// Derive("journal_batch", "FAC-2024-00001", "invoice").
func Derive(parts ...string) ID {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "|"
		}
		key += p
	}
	return uuid.NewSHA1(namespace, []byte(key))
}

// Parse converts string to ID, reporting malformed input as a validation error.
func Parse(field, s string) (ID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperror.NewValidation("malformed identifier").
			WithDetail("field", field).
			WithDetail("value", s)
	}
	return v, nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
