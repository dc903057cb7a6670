// Package currency resolves exchange rates and converts amounts between
// currencies. The rate table is its only input.
package currency

import (
	"strings"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
)

// ExchangeRate is one row of the rate table: 1 Source = Rate Target.
type ExchangeRate struct {
	ID            id.ID      `db:"id" json:"id"`
	Source        string     `db:"source_currency" json:"source"`
	Target        string     `db:"target_currency" json:"target"`
	Rate          types.Rate `db:"rate" json:"rate"`
	EffectiveDate time.Time  `db:"effective_date" json:"effectiveDate"`
	Active        bool       `db:"active" json:"active"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// Validate checks the row before it is stored.
func (r ExchangeRate) Validate() error {
	var v apperror.Violations
	if !ValidCode(r.Source) {
		v.Addf("source", "invalid currency code %q", r.Source)
	}
	if !ValidCode(r.Target) {
		v.Addf("target", "invalid currency code %q", r.Target)
	}
	if r.Source == r.Target {
		v.Add("target", "source and target currencies must differ")
	}
	if !r.Rate.IsPositive() {
		v.Add("rate", "rate must be positive")
	}
	if r.EffectiveDate.IsZero() {
		v.Add("effectiveDate", "effective date is required")
	}
	return v.Err("invalid exchange rate")
}

// Quote is a resolved rate: 1 From = Rate To.
type Quote struct {
	From          string     `json:"from"`
	To            string     `json:"to"`
	Rate          types.Rate `json:"rate"`
	EffectiveDate time.Time  `json:"effectiveDate"`
	// Inverted is set when the rate was derived from the To->From row.
	Inverted bool `json:"inverted"`
}

// ListFilter filters rate rows.
type ListFilter struct {
	Source     string
	Target     string
	ActiveOnly bool
	Limit      int
}

// Normalize upper-cases and trims a currency code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code looks like an ISO 4217 alphabetic code.
func ValidCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// day truncates t to its UTC calendar day.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
