package dto

import (
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain/payment"
)

// RecordPaymentRequest records a payment against an invoice.
type RecordPaymentRequest struct {
	Date         Date         `json:"date"`
	Amount       types.Money  `json:"amount"`
	Currency     string       `json:"currency"`
	ExchangeRate types.Rate   `json:"exchangeRate"`
	Mode         payment.Mode `json:"mode"`
	Reference    string       `json:"reference"`
	Pending      bool         `json:"pending"`
}

func (r RecordPaymentRequest) ToInput() payment.Input {
	return payment.Input{
		Date:         r.Date.Time,
		Amount:       r.Amount,
		Currency:     r.Currency,
		ExchangeRate: r.ExchangeRate,
		Mode:         r.Mode,
		Reference:    r.Reference,
		Pending:      r.Pending,
	}
}

// PaymentResponse is a payment plus the invoice balance after it.
type PaymentResponse struct {
	Payment payment.Payment  `json:"payment"`
	Balance *payment.Balance `json:"balance,omitempty"`
}
