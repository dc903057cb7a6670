package handlers

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/domain/payment"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// PaymentHandler manages recorded payments.
type PaymentHandler struct {
	*BaseHandler
	payments *payment.Service
}

func NewPaymentHandler(base *BaseHandler, payments *payment.Service) *PaymentHandler {
	return &PaymentHandler{BaseHandler: base, payments: payments}
}

// Get handles GET /payments/:number.
func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.payments.GetPayment(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "", p)
}

// Confirm handles POST /payments/:number/confirm.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	p, err := h.payments.ConfirmPayment(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "payment confirmed", h.withBalance(c, p))
}

// Cancel handles POST /payments/:number/cancel.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	var req dto.CancelRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	p, err := h.payments.CancelPayment(c.Request.Context(), c.Param("number"), req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "payment cancelled", h.withBalance(c, p))
}

func (h *PaymentHandler) withBalance(c *gin.Context, p payment.Payment) dto.PaymentResponse {
	resp := dto.PaymentResponse{Payment: p}
	if bal, err := h.payments.GetOutstandingBalance(c.Request.Context(), p.InvoiceNumber); err == nil {
		resp.Balance = &bal
	}
	return resp
}
