package handlers

import (
	"github.com/gin-gonic/gin"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/invoice"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/payment"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// InvoiceHandler exposes the invoice lifecycle and its ledger views.
type InvoiceHandler struct {
	*BaseHandler
	invoices *invoice.Service
	ledger   *ledger.Service
	payments *payment.Service
}

func NewInvoiceHandler(base *BaseHandler, invoices *invoice.Service, journal *ledger.Service, payments *payment.Service) *InvoiceHandler {
	return &InvoiceHandler{BaseHandler: base, invoices: invoices, ledger: journal, payments: payments}
}

// Create handles POST /invoices.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	header, lines := req.ToDomain()
	draft, err := h.invoices.Create(c.Request.Context(), header, lines)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, "invoice created", dto.FromInvoice(draft))
}

// List handles GET /invoices.
func (h *InvoiceHandler) List(c *gin.Context) {
	var q dto.InvoiceListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}
	res, err := h.invoices.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "", dto.FromInvoiceList(res))
}

// Get handles GET /invoices/:number.
func (h *InvoiceHandler) Get(c *gin.Context) {
	st, err := h.invoices.Get(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "", dto.FromInvoice(st))
}

// UpdateHeader handles PATCH /invoices/:number.
func (h *InvoiceHandler) UpdateHeader(c *gin.Context) {
	var req dto.UpdateHeaderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	draft, err := h.invoices.UpdateHeader(c.Request.Context(), c.Param("number"), req.ToPatch())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "invoice updated", dto.FromInvoice(draft))
}

// AddLine handles POST /invoices/:number/lines.
func (h *InvoiceHandler) AddLine(c *gin.Context) {
	var req dto.LineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	draft, err := h.invoices.AddLine(c.Request.Context(), c.Param("number"), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, "line added", dto.FromInvoice(draft))
}

// UpdateLine handles PATCH /invoices/:number/lines/:lineId.
func (h *InvoiceHandler) UpdateLine(c *gin.Context) {
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}
	var req dto.UpdateLineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	draft, err := h.invoices.UpdateLine(c.Request.Context(), c.Param("number"), lineID, req.ToPatch())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "line updated", dto.FromInvoice(draft))
}

// RemoveLine handles DELETE /invoices/:number/lines/:lineId.
func (h *InvoiceHandler) RemoveLine(c *gin.Context) {
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}
	draft, err := h.invoices.RemoveLine(c.Request.Context(), c.Param("number"), lineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "line removed", dto.FromInvoice(draft))
}

// Preview handles POST /invoices/preview. Nothing is stored.
func (h *InvoiceHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if !h.BindJSON(c, &req) {
		return
	}
	totals, lines, err := h.invoices.PreviewTotals(req.Inputs())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "", dto.PreviewResponse{Lines: lines, Totals: totals})
}

// Validate handles POST /invoices/:number/validate.
func (h *InvoiceHandler) Validate(c *gin.Context) {
	v, err := h.invoices.Validate(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "invoice validated", dto.FromInvoice(v))
}

// Cancel handles POST /invoices/:number/cancel.
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	var req dto.CancelRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	cancelled, err := h.invoices.Cancel(c.Request.Context(), c.Param("number"), req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "invoice cancelled", dto.FromInvoice(cancelled))
}

// Reverse handles POST /invoices/:number/reverse.
func (h *InvoiceHandler) Reverse(c *gin.Context) {
	batch, err := h.ledger.ReverseInvoice(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, "journal reversed", batch)
}

// Journal handles GET /invoices/:number/journal: the invoice, reversal and
// settlement entries of one invoice.
func (h *InvoiceHandler) Journal(c *gin.Context) {
	ctx := c.Request.Context()
	number := c.Param("number")
	st, err := h.invoices.Get(ctx, number)
	if err != nil {
		h.Error(c, err)
		return
	}
	entries, err := h.ledger.EntriesByReference(ctx, number)
	if err != nil {
		h.Error(c, err)
		return
	}
	purchase := st.Record().Direction == invoice.DirectionPurchase
	settlement, err := h.ledger.EntriesByReference(ctx, ledger.SettlementReference(purchase, number))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "", dto.FromEntries(number, append(entries, settlement...)))
}

// Balance handles GET /invoices/:number/balance.
func (h *InvoiceHandler) Balance(c *gin.Context) {
	bal, err := h.payments.GetOutstandingBalance(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "", bal)
}

// Payments handles GET /invoices/:number/payments.
func (h *InvoiceHandler) Payments(c *gin.Context) {
	list, err := h.payments.ListPayments(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}
	if list == nil {
		list = []payment.Payment{}
	}
	h.OK(c, "", list)
}

// RecordPayment handles POST /invoices/:number/payments.
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	number := c.Param("number")
	p, err := h.payments.RecordPayment(ctx, number, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	resp := dto.PaymentResponse{Payment: p}
	if bal, err := h.payments.GetOutstandingBalance(ctx, number); err == nil {
		resp.Balance = &bal
	}
	h.Created(c, "payment recorded", resp)
}
