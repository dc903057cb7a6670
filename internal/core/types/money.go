// Package types provides the decimal arithmetic shared by the ledger.
package types

import (
	"github.com/shopspring/decimal"
)

// Money is a monetary amount. Ledger amounts are kept at 2 decimal places.
type Money = decimal.Decimal

// Quantity is an invoice line quantity (fractional quantities are allowed).
type Quantity = decimal.Decimal

// Rate is an exchange rate or any other unbounded multiplier.
type Rate = decimal.Decimal

// Percent is a 0..100 percentage such as a tax or discount rate.
type Percent = decimal.Decimal

const (
	// MoneyScale is the number of decimal places kept for amounts.
	MoneyScale int32 = 2
	// RateScale is the number of decimal places kept for derived rates.
	RateScale int32 = 10
)

var (
	hundred = decimal.NewFromInt(100)
	// Cent is the smallest representable amount.
	Cent = decimal.New(1, -MoneyScale)
)

// MustMoney parses s, panics on error. Use only for constants and tests.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Round2 rounds to cents, half away from zero. For the non-negative amounts
// the ledger stores this is round-half-up.
func Round2(m Money) Money {
	return m.Round(MoneyScale)
}

// ApplyPercent returns m * p / 100 without rounding.
func ApplyPercent(m Money, p Percent) Money {
	return m.Mul(p).Div(hundred)
}

// Complement returns (100 - p) / 100, the factor left after a discount of p.
func Complement(p Percent) decimal.Decimal {
	return hundred.Sub(p).Div(hundred)
}

// InPercentRange reports whether 0 <= p <= 100.
func InPercentRange(p Percent) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// Sum adds amounts.
func Sum(values ...Money) Money {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Invert returns 1/r rounded to RateScale places. r must be positive.
func Invert(r Rate) Rate {
	return decimal.NewFromInt(1).DivRound(r, RateScale)
}

// Convert multiplies amount by rate and rounds to cents.
func Convert(amount Money, rate Rate) Money {
	return Round2(amount.Mul(rate))
}

// EqualCents compares two amounts after rounding both to cents.
func EqualCents(a, b Money) bool {
	return Round2(a).Equal(Round2(b))
}
