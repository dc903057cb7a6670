package dto

import (
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/invoice"
)

// LineRequest is a line to add or preview.
type LineRequest struct {
	ArticleRef   string         `json:"articleRef"`
	Description  string         `json:"description"`
	Quantity     types.Quantity `json:"quantity"`
	UnitPrice    types.Money    `json:"unitPrice"`
	TaxRate      types.Percent  `json:"taxRate"`
	DiscountRate types.Percent  `json:"discountRate"`
}

func (r LineRequest) ToInput() invoice.LineInput {
	return invoice.LineInput{
		ArticleRef:   r.ArticleRef,
		Description:  r.Description,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		TaxRate:      r.TaxRate,
		DiscountRate: r.DiscountRate,
	}
}

func lineInputs(lines []LineRequest) []invoice.LineInput {
	out := make([]invoice.LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.ToInput())
	}
	return out
}

// CreateInvoiceRequest creates a draft.
type CreateInvoiceRequest struct {
	Direction       invoice.Direction `json:"direction" binding:"required"`
	Type            invoice.DocType   `json:"type"`
	Date            Date              `json:"date"`
	DueDate         Date              `json:"dueDate"`
	CounterpartyRef string            `json:"counterpartyRef" binding:"required"`
	PaymentTerms    string            `json:"paymentTerms"`
	Currency        string            `json:"currency"`
	ExchangeRate    types.Rate        `json:"exchangeRate"`
	CreditsNumber   string            `json:"creditsNumber"`
	Notes           string            `json:"notes"`
	Lines           []LineRequest     `json:"lines"`
}

func (r CreateInvoiceRequest) ToDomain() (invoice.Header, []invoice.LineInput) {
	docType := r.Type
	if docType == "" {
		docType = invoice.TypeInvoice
	}
	return invoice.Header{
		Direction:       r.Direction,
		Type:            docType,
		Date:            r.Date.Time,
		DueDate:         r.DueDate.Time,
		CounterpartyRef: r.CounterpartyRef,
		PaymentTerms:    r.PaymentTerms,
		Currency:        r.Currency,
		ExchangeRate:    r.ExchangeRate,
		CreditsNumber:   r.CreditsNumber,
		Notes:           r.Notes,
	}, lineInputs(r.Lines)
}

// UpdateHeaderRequest patches the header of a draft.
type UpdateHeaderRequest struct {
	Date            *Date   `json:"date"`
	DueDate         *Date   `json:"dueDate"`
	CounterpartyRef *string `json:"counterpartyRef"`
	PaymentTerms    *string `json:"paymentTerms"`
	Notes           *string `json:"notes"`
}

func (r UpdateHeaderRequest) ToPatch() invoice.HeaderPatch {
	return invoice.HeaderPatch{
		Date:            r.Date.Ptr(),
		DueDate:         r.DueDate.Ptr(),
		CounterpartyRef: r.CounterpartyRef,
		PaymentTerms:    r.PaymentTerms,
		Notes:           r.Notes,
	}
}

// UpdateLineRequest patches one line of a draft.
type UpdateLineRequest struct {
	ArticleRef   *string         `json:"articleRef"`
	Description  *string         `json:"description"`
	Quantity     *types.Quantity `json:"quantity"`
	UnitPrice    *types.Money    `json:"unitPrice"`
	TaxRate      *types.Percent  `json:"taxRate"`
	DiscountRate *types.Percent  `json:"discountRate"`
}

func (r UpdateLineRequest) ToPatch() invoice.LinePatch {
	return invoice.LinePatch{
		ArticleRef:   r.ArticleRef,
		Description:  r.Description,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		TaxRate:      r.TaxRate,
		DiscountRate: r.DiscountRate,
	}
}

// PreviewRequest computes totals without storing anything.
type PreviewRequest struct {
	Lines []LineRequest `json:"lines" binding:"required"`
}

func (r PreviewRequest) Inputs() []invoice.LineInput { return lineInputs(r.Lines) }

// PreviewResponse holds computed lines and totals.
type PreviewResponse struct {
	Lines  []invoice.Line `json:"lines"`
	Totals invoice.Totals `json:"totals"`
}

// CancelRequest carries the reason of a cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// InvoiceResponse is an invoice in any state.
type InvoiceResponse struct {
	invoice.Record
	Settled bool `json:"settled"`
}

func FromInvoice(st invoice.State) InvoiceResponse {
	rec := st.Record()
	if rec.Lines == nil {
		rec.Lines = []invoice.Line{}
	}
	return InvoiceResponse{Record: rec, Settled: rec.SettledAt != nil}
}

// InvoiceListQuery binds the list filters.
type InvoiceListQuery struct {
	Direction       string `form:"direction"`
	Type            string `form:"type"`
	Status          string `form:"status"`
	CounterpartyRef string `form:"counterpartyRef"`
	Settled         *bool  `form:"settled"`
	From            string `form:"from"`
	To              string `form:"to"`
	Search          string `form:"search"`
	Limit           int    `form:"limit"`
	Offset          int    `form:"offset"`
}

func (q InvoiceListQuery) ToFilter() (invoice.ListFilter, error) {
	from, err := ParseDate(q.From)
	if err != nil {
		return invoice.ListFilter{}, err
	}
	to, err := ParseDate(q.To)
	if err != nil {
		return invoice.ListFilter{}, err
	}
	page := domain.Page{Limit: q.Limit, Offset: q.Offset}.Normalize()
	f := invoice.ListFilter{
		Direction:       invoice.Direction(q.Direction),
		Type:            invoice.DocType(q.Type),
		Status:          invoice.Status(q.Status),
		CounterpartyRef: q.CounterpartyRef,
		Settled:         q.Settled,
		Search:          q.Search,
		Limit:           page.Limit,
		Offset:          page.Offset,
	}
	if !from.IsZero() {
		f.DateFrom = &from
	}
	if !to.IsZero() {
		f.DateTo = &to
	}
	return f, nil
}

// InvoiceListResponse is one page of invoice headers.
type InvoiceListResponse struct {
	Items      []InvoiceResponse `json:"items"`
	TotalCount int64             `json:"totalCount"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

func FromInvoiceList(res domain.ListResult[invoice.Record]) InvoiceListResponse {
	items := make([]InvoiceResponse, 0, len(res.Items))
	for _, rec := range res.Items {
		if rec.Lines == nil {
			rec.Lines = []invoice.Line{}
		}
		items = append(items, InvoiceResponse{Record: rec, Settled: rec.SettledAt != nil})
	}
	return InvoiceListResponse{
		Items:      items,
		TotalCount: res.TotalCount,
		Limit:      res.Limit,
		Offset:     res.Offset,
	}
}
