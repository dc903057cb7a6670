package invoice

import (
	"strings"
	"time"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/entity"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
)

// State is an invoice in one of its primary lifecycle states.
// It is implemented by Draft, Validated and Cancelled only.
type State interface {
	ID() id.ID
	Number() string
	Status() Status
	// Record returns a copy of the persisted form.
	Record() Record
	sealed()
}

// Draft is an editable invoice.
type Draft struct{ rec Record }

// Validated is an invoice whose journal batch exists. It may carry the
// settled overlay.
type Validated struct{ rec Record }

// Cancelled is terminal.
type Cancelled struct{ rec Record }

func (Draft) sealed()     {}
func (Validated) sealed() {}
func (Cancelled) sealed() {}

func (d Draft) ID() id.ID { return d.rec.ID }
func (d Draft) Number() string { return d.rec.Number }
func (d Draft) Status() Status { return StatusDraft }
func (d Draft) Record() Record { return d.rec.clone() }
func (d Draft) Lines() []Line { return append([]Line(nil), d.rec.Lines...) }
func (d Draft) Totals() Totals { return d.rec.Totals() }
func (v Validated) ID() id.ID { return v.rec.ID }
func (v Validated) Number() string { return v.rec.Number }
func (v Validated) Status() Status { return StatusValidated }
func (v Validated) Record() Record { return v.rec.clone() }
func (c Cancelled) ID() id.ID { return c.rec.ID }
func (c Cancelled) Number() string { return c.rec.Number }
func (c Cancelled) Status() Status { return StatusCancelled }
func (c Cancelled) Record() Record { return c.rec.clone() }

// NewDraft builds a draft from header fields and initial lines.
// The number is assigned by the caller at persistence time.
func NewDraft(number string, h Header, lines []LineInput, now time.Time, actor string) (Draft, error) {
	h.Currency = strings.ToUpper(strings.TrimSpace(h.Currency))
	if h.Type == "" {
		h.Type = TypeInvoice
	}
	if h.DueDate.IsZero() {
		h.DueDate = h.Date
	}

	var v apperror.Violations
	if !h.Direction.valid() {
		v.Addf("direction", "unknown direction %q", h.Direction)
	}
	if !h.Type.valid() {
		v.Addf("type", "unknown document type %q", h.Type)
	}
	if h.Date.IsZero() {
		v.Add("date", "document date is required")
	}
	if strings.TrimSpace(h.CounterpartyRef) == "" {
		v.Add("counterpartyRef", "counterparty is required")
	}
	if len(h.Currency) != 3 {
		v.Addf("currency", "invalid currency code %q", h.Currency)
	}
	if h.ExchangeRate.IsNegative() {
		v.Add("exchangeRate", "exchange rate must be positive")
	}
	if h.CreditsNumber != "" && h.Type != TypeCreditNote {
		v.Add("creditsNumber", "only a credit note can reference another invoice")
	}

	computed := make([]Line, 0, len(lines))
	for i, in := range lines {
		l, err := ComputeLine(in)
		if err != nil {
			appendViolations(&v, err, i+1)
			continue
		}
		computed = append(computed, l)
	}
	if err := v.Err("invalid invoice"); err != nil {
		return Draft{}, err
	}

	rec := Record{
		BaseDocument:    entity.NewBaseDocument(now, actor),
		Number:          number,
		Direction:       h.Direction,
		Type:            h.Type,
		Date:            h.Date,
		DueDate:         h.DueDate,
		CounterpartyRef: strings.TrimSpace(h.CounterpartyRef),
		PaymentTerms:    h.PaymentTerms,
		Currency:        h.Currency,
		ExchangeRate:    h.ExchangeRate,
		CreditsNumber:   h.CreditsNumber,
		Notes:           h.Notes,
		Status:          StatusDraft,
	}
	for _, l := range computed {
		l.LineID = id.New()
		rec.Lines = append(rec.Lines, l)
	}
	return Draft{rec: withTotals(rec)}, nil
}

// FromRecord restores the state value of a persisted invoice.
func FromRecord(r Record) (State, error) {
	r = r.clone()
	switch r.Status {
	case StatusDraft:
		return Draft{rec: r}, nil
	case StatusValidated:
		return Validated{rec: r}, nil
	case StatusCancelled:
		return Cancelled{rec: r}, nil
	default:
		return nil, apperror.NewConsistency("invoice has an unknown status").
			WithDetail("number", r.Number).
			WithDetail("status", string(r.Status))
	}
}

// withTotals renumbers lines and derives the header totals.
func withTotals(r Record) Record {
	for i := range r.Lines {
		r.Lines[i].LineNo = i + 1
	}
	t := ComputeTotals(r.Lines)
	r.AmountHT, r.AmountTax, r.AmountTTC = t.AmountHT, t.AmountTax, t.AmountTTC
	return r
}

func (d Draft) lineIndex(lineID id.ID) (int, error) {
	for i, l := range d.rec.Lines {
		if l.LineID == lineID {
			return i, nil
		}
	}
	return -1, apperror.NewNotFound("invoice line", lineID.String()).
		WithDetail("number", d.rec.Number)
}

// AddLine appends a line.
func (d Draft) AddLine(in LineInput) (Draft, error) {
	l, err := ComputeLine(in)
	if err != nil {
		return d, withNumber(err, d.rec.Number)
	}
	l.LineID = id.New()

	rec := d.rec.clone()
	rec.Lines = append(rec.Lines, l)
	return Draft{rec: withTotals(rec)}, nil
}

// RemoveLine drops a line.
func (d Draft) RemoveLine(lineID id.ID) (Draft, error) {
	i, err := d.lineIndex(lineID)
	if err != nil {
		return d, err
	}
	rec := d.rec.clone()
	rec.Lines = append(rec.Lines[:i], rec.Lines[i+1:]...)
	return Draft{rec: withTotals(rec)}, nil
}

// UpdateLine applies patch to a line and recomputes its amounts.
func (d Draft) UpdateLine(lineID id.ID, patch LinePatch) (Draft, error) {
	i, err := d.lineIndex(lineID)
	if err != nil {
		return d, err
	}
	cur := d.rec.Lines[i]
	in := LineInput{
		ArticleRef:   cur.ArticleRef,
		Description:  cur.Description,
		Quantity:     cur.Quantity,
		UnitPrice:    cur.UnitPrice,
		TaxRate:      cur.TaxRate,
		DiscountRate: cur.DiscountRate,
	}
	if patch.ArticleRef != nil {
		in.ArticleRef = *patch.ArticleRef
	}
	if patch.Description != nil {
		in.Description = *patch.Description
	}
	if patch.Quantity != nil {
		in.Quantity = *patch.Quantity
	}
	if patch.UnitPrice != nil {
		in.UnitPrice = *patch.UnitPrice
	}
	if patch.TaxRate != nil {
		in.TaxRate = *patch.TaxRate
	}
	if patch.DiscountRate != nil {
		in.DiscountRate = *patch.DiscountRate
	}

	l, err := ComputeLine(in)
	if err != nil {
		return d, withNumber(err, d.rec.Number)
	}
	l.LineID = cur.LineID

	rec := d.rec.clone()
	rec.Lines[i] = l
	return Draft{rec: withTotals(rec)}, nil
}

// UpdateHeader applies patch to the editable header fields.
func (d Draft) UpdateHeader(patch HeaderPatch) (Draft, error) {
	rec := d.rec.clone()
	if patch.Date != nil {
		rec.Date = *patch.Date
	}
	if patch.DueDate != nil {
		rec.DueDate = *patch.DueDate
	}
	if patch.CounterpartyRef != nil {
		rec.CounterpartyRef = strings.TrimSpace(*patch.CounterpartyRef)
	}
	if patch.PaymentTerms != nil {
		rec.PaymentTerms = *patch.PaymentTerms
	}
	if patch.Notes != nil {
		rec.Notes = *patch.Notes
	}

	var v apperror.Violations
	if rec.Date.IsZero() {
		v.Add("date", "document date is required")
	}
	if rec.CounterpartyRef == "" {
		v.Add("counterpartyRef", "counterparty is required")
	}
	if err := v.Err("invalid invoice header"); err != nil {
		return d, withNumber(err, d.rec.Number)
	}
	return Draft{rec: rec}, nil
}

// Touched stamps the draft as modified.
func (d Draft) Touched(now time.Time, actor string) Draft {
	rec := d.rec.clone()
	rec.BaseDocument = rec.Touched(now, actor)
	return Draft{rec: rec}
}

// Validate checks every precondition and returns the validated invoice.
// All violations are reported in one VALIDATION_ERROR.
func (d Draft) Validate(now time.Time) (Validated, error) {
	rec := d.rec.clone()

	var v apperror.Violations
	if rec.Type == TypeProforma {
		v.Add("type", "a proforma cannot be validated")
	}
	if len(rec.Lines) == 0 {
		v.Add("lines", "invoice must have at least one line")
	}
	for _, l := range rec.Lines {
		if l.AmountHT.IsNegative() {
			v.Addf(lineField(l.LineNo, "amountHt"), "line amount must not be negative, got %s", l.AmountHT)
		}
	}
	if !rec.DueDate.IsZero() && rec.DueDate.Before(rec.Date) {
		v.Addf("dueDate", "due date %s is before document date %s",
			rec.DueDate.Format(time.DateOnly), rec.Date.Format(time.DateOnly))
	}
	if !rec.ExchangeRate.IsPositive() {
		v.Add("exchangeRate", "exchange rate must be positive")
	}
	if rec.Number == "" {
		v.Add("number", "invoice has no number")
	}
	if err := v.Err("invoice cannot be validated"); err != nil {
		return Validated{}, withNumber(err, rec.Number)
	}

	rec = withTotals(rec)
	at := now.UTC()
	rec.Status = StatusValidated
	rec.ValidatedAt = &at
	rec.UpdatedAt = at
	return Validated{rec: rec}, nil
}

// Cancel cancels the draft.
func (d Draft) Cancel(now time.Time, reason string) Cancelled {
	return cancel(d.rec, now, reason)
}

// Cancel cancels the validated invoice. Its journal batch is kept.
func (v Validated) Cancel(now time.Time, reason string) Cancelled {
	return cancel(v.rec, now, reason)
}

func cancel(r Record, now time.Time, reason string) Cancelled {
	rec := r.clone()
	at := now.UTC()
	rec.Status = StatusCancelled
	rec.CancelledAt = &at
	rec.CancelReason = reason
	rec.UpdatedAt = at
	return Cancelled{rec: rec}
}

// Settle sets the settled overlay. Settling twice keeps the first date.
func (v Validated) Settle(now time.Time) Validated {
	if v.rec.SettledAt != nil {
		return v
	}
	rec := v.rec.clone()
	at := now.UTC()
	rec.SettledAt = &at
	rec.UpdatedAt = at
	return Validated{rec: rec}
}

// Touched stamps the invoice as modified.
func (v Validated) Touched(now time.Time, actor string) Validated {
	rec := v.rec.clone()
	rec.BaseDocument = rec.Touched(now, actor)
	return Validated{rec: rec}
}

func (v Validated) IsSettled() bool { return v.rec.SettledAt != nil }
func (v Validated) Direction() Direction { return v.rec.Direction }
func (v Validated) Type() DocType { return v.rec.Type }
func (v Validated) Date() time.Time { return v.rec.Date }
func (v Validated) Currency() string { return v.rec.Currency }
func (v Validated) ExchangeRate() types.Rate { return v.rec.ExchangeRate }
func (v Validated) CounterpartyRef() string { return v.rec.CounterpartyRef }
func (v Validated) Totals() Totals { return v.rec.Totals() }
func (v Validated) Lines() []Line { return append([]Line(nil), v.rec.Lines...) }
func (v Validated) ValidatedAt() time.Time { return derefTime(v.rec.ValidatedAt) }
func (c Cancelled) Reason() string { return c.rec.CancelReason }
func (c Cancelled) WasValidated() bool { return c.rec.ValidatedAt != nil }
func (c Cancelled) Direction() Direction { return c.rec.Direction }
func (c Cancelled) CancelledAt() time.Time { return derefTime(c.rec.CancelledAt) }

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// NotDraft builds the INVALID_STATE error returned when an edit is
// attempted on s.
func NotDraft(s State, operation string) error {
	return invalidState(s, operation)
}

func invalidState(s State, operation string) *apperror.AppError {
	state := string(s.Status())
	if v, ok := s.(Validated); ok && v.IsSettled() {
		state += "+settled"
	}
	return apperror.NewInvalidState("invoice", s.Number(), state, operation)
}

func withNumber(err error, number string) error {
	if appErr, ok := apperror.AsAppError(err); ok && number != "" {
		return appErr.WithDetail("number", number)
	}
	return err
}
