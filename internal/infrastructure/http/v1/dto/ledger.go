package dto

import (
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/domain/ledger"
)

// JournalResponse lists the entries carrying one reference.
type JournalResponse struct {
	Reference string         `json:"reference"`
	Entries   []ledger.Entry `json:"entries"`
	Debit     string         `json:"totalDebit"`
	Credit    string         `json:"totalCredit"`
}

func FromEntries(reference string, entries []ledger.Entry) JournalResponse {
	if entries == nil {
		entries = []ledger.Entry{}
	}
	debit, credit := ledger.Sums(entries)
	return JournalResponse{
		Reference: reference,
		Entries:   entries,
		Debit:     debit.StringFixed(2),
		Credit:    credit.StringFixed(2),
	}
}

// AccountRequest upserts one mapping row.
type AccountRequest struct {
	Category        ledger.Category `json:"category" binding:"required"`
	CounterpartyRef string          `json:"counterpartyRef"`
	Code            string          `json:"code" binding:"required"`
	Label           string          `json:"label"`
	Active          *bool           `json:"active"`
}

func (r AccountRequest) ToDomain() ledger.Account {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return ledger.Account{
		Category:        r.Category,
		CounterpartyRef: r.CounterpartyRef,
		Code:            r.Code,
		Label:           r.Label,
		Active:          active,
	}
}

// RateRequest upserts one exchange-rate row.
type RateRequest struct {
	Source        string `json:"source" binding:"required"`
	Target        string `json:"target" binding:"required"`
	Rate          string `json:"rate" binding:"required"`
	EffectiveDate Date   `json:"effectiveDate"`
	Active        *bool  `json:"active"`
}

// ConvertResponse is the result of a conversion.
type ConvertResponse struct {
	Amount    string         `json:"amount"`
	Converted string         `json:"converted"`
	Quote     currency.Quote `json:"quote"`
}
