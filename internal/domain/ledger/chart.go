// Package ledger generates the double-entry journal: the batch of a
// validated invoice, the settlement batch of a fully paid invoice and the
// reversal batch of a cancelled one. Journal rows are append-only.
package ledger

import (
	"strings"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
)

// Category is a semantic account role.
type Category string

const (
	CategoryReceivable    Category = "receivable"
	CategoryPayable       Category = "payable"
	CategoryVATCollected  Category = "vat_collected"
	CategoryVATDeductible Category = "vat_deductible"
	CategoryRevenue       Category = "revenue"
	CategoryPurchases     Category = "purchases"
	CategoryBank          Category = "bank"
	CategoryCash          Category = "cash"
)

// Categories lists every category the generator resolves.
var Categories = []Category{
	CategoryReceivable,
	CategoryPayable,
	CategoryVATCollected,
	CategoryVATDeductible,
	CategoryRevenue,
	CategoryPurchases,
	CategoryBank,
	CategoryCash,
}

// Account maps a category to an account code. A row with a
// CounterpartyRef overrides the default of its category for that
// counterparty only.
type Account struct {
	ID              id.ID    `db:"id" json:"id"`
	Category        Category `db:"category" json:"category"`
	CounterpartyRef string   `db:"counterparty_ref" json:"counterpartyRef,omitempty"`
	Code            string   `db:"account_code" json:"code"`
	Label           string   `db:"label" json:"label"`
	Active          bool     `db:"active" json:"active"`
}

// Validate checks a mapping row before it is stored.
func (a Account) Validate() error {
	var v apperror.Violations
	if !knownCategory(a.Category) {
		v.Addf("category", "unknown category %q", a.Category)
	}
	if strings.TrimSpace(a.Code) == "" {
		v.Add("code", "account code is required")
	}
	return v.Err("invalid account mapping")
}

func knownCategory(c Category) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// DefaultAccounts is the French PCG mapping seeded into a new ledger.
func DefaultAccounts() []Account {
	rows := []struct {
		cat   Category
		code  string
		label string
	}{
		{CategoryReceivable, "411", "Clients"},
		{CategoryPayable, "401", "Fournisseurs"},
		{CategoryVATCollected, "44571", "TVA collectée"},
		{CategoryVATDeductible, "44566", "TVA déductible sur autres biens et services"},
		{CategoryRevenue, "707", "Ventes de marchandises"},
		{CategoryPurchases, "607", "Achats de marchandises"},
		{CategoryBank, "512", "Banque"},
		{CategoryCash, "531", "Caisse"},
	}
	out := make([]Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, Account{
			ID:       id.Derive("account", string(r.cat)),
			Category: r.cat,
			Code:     r.code,
			Label:    r.label,
			Active:   true,
		})
	}
	return out
}

// Chart is a read-only lookup over the active mapping rows.
type Chart struct {
	defaults  map[Category]Account
	overrides map[overrideKey]Account
}

type overrideKey struct {
	category     Category
	counterparty string
}

// NewChart indexes accounts. Inactive rows are ignored.
func NewChart(accounts []Account) *Chart {
	c := &Chart{
		defaults:  make(map[Category]Account),
		overrides: make(map[overrideKey]Account),
	}
	for _, a := range accounts {
		if !a.Active {
			continue
		}
		if a.CounterpartyRef == "" {
			c.defaults[a.Category] = a
			continue
		}
		c.overrides[overrideKey{a.Category, a.CounterpartyRef}] = a
	}
	return c
}

// Resolve returns the account of category for counterparty. A missing
// mapping is a CONFIGURATION_ERROR.
func (c *Chart) Resolve(category Category, counterparty string) (Account, error) {
	if counterparty != "" {
		if a, ok := c.overrides[overrideKey{category, counterparty}]; ok {
			return a, nil
		}
	}
	if a, ok := c.defaults[category]; ok {
		return a, nil
	}
	return Account{}, apperror.NewConfiguration("no account mapped for category").
		WithDetail("category", string(category)).
		WithDetail("counterparty", counterparty)
}
