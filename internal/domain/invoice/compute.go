package invoice

import (
	"fmt"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/types"
)

// ComputeLine derives the amounts of a line.
//
// Every amount is rounded half-up to cents on the line, and header totals
// are sums of rounded line amounts. Tax is computed on the rounded HT.
func ComputeLine(in LineInput) (Line, error) {
	if err := checkLineInput(in); err != nil {
		return Line{}, err
	}

	gross := in.Quantity.Mul(in.UnitPrice)
	ht := types.Round2(gross.Mul(types.Complement(in.DiscountRate)))
	tax := types.Round2(types.ApplyPercent(ht, in.TaxRate))

	return Line{
		ArticleRef:   in.ArticleRef,
		Description:  in.Description,
		Quantity:     in.Quantity,
		UnitPrice:    in.UnitPrice,
		TaxRate:      in.TaxRate,
		DiscountRate: in.DiscountRate,
		AmountHT:     ht,
		AmountTax:    tax,
		AmountTTC:    ht.Add(tax),
	}, nil
}

// ComputeTotals sums the line amounts. It has no side effects and may be
// used to preview totals of lines that are not stored.
func ComputeTotals(lines []Line) Totals {
	t := Totals{AmountHT: types.Zero(), AmountTax: types.Zero(), AmountTTC: types.Zero()}
	for _, l := range lines {
		t.AmountHT = t.AmountHT.Add(l.AmountHT)
		t.AmountTax = t.AmountTax.Add(l.AmountTax)
		t.AmountTTC = t.AmountTTC.Add(l.AmountTTC)
	}
	return t
}

// PreviewTotals computes the totals of unsaved line inputs.
func PreviewTotals(inputs []LineInput) (Totals, []Line, error) {
	lines := make([]Line, 0, len(inputs))
	var v apperror.Violations
	for i, in := range inputs {
		l, err := ComputeLine(in)
		if err != nil {
			appendViolations(&v, err, i+1)
			continue
		}
		l.LineNo = i + 1
		lines = append(lines, l)
	}
	if err := v.Err("invalid invoice lines"); err != nil {
		return Totals{}, nil, err
	}
	return ComputeTotals(lines), lines, nil
}

func checkLineInput(in LineInput) error {
	var v apperror.Violations
	if !in.Quantity.IsPositive() {
		v.Add("quantity", "quantity must be greater than zero")
	}
	if in.UnitPrice.IsNegative() {
		v.Add("unitPrice", "unit price must not be negative")
	}
	if !types.InPercentRange(in.TaxRate) {
		v.Add("taxRate", "tax rate must be between 0 and 100")
	}
	if !types.InPercentRange(in.DiscountRate) {
		v.Add("discountRate", "discount rate must be between 0 and 100")
	}
	if in.ArticleRef == "" && in.Description == "" {
		v.Add("description", "a free-text line needs a description")
	}
	return v.Err("invalid invoice line")
}

// appendViolations copies the violations of err into v, prefixing fields
// with the line number.
func appendViolations(v *apperror.Violations, err error, lineNo int) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		v.Addf("lines", "line %d: %v", lineNo, err)
		return
	}
	for _, viol := range appErr.Violations {
		v.Add(lineField(lineNo, viol.Field), viol.Message)
	}
}

// lineField names field of line lineNo in a violation, e.g. lines[2].quantity.
func lineField(lineNo int, field string) string {
	return fmt.Sprintf("lines[%d].%s", lineNo, field)
}
