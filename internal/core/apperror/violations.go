package apperror

import (
	"fmt"
	"net/http"
)

// Violations collects failed preconditions so that validation reports all of
// them at once instead of stopping at the first one.
type Violations struct {
	items []Violation
}

// Add records a violation on field.
func (v *Violations) Add(field, message string) {
	v.items = append(v.items, Violation{Field: field, Message: message})
}

// Addf records a formatted violation on field.
func (v *Violations) Addf(field, format string, args ...any) {
	v.Add(field, fmt.Sprintf(format, args...))
}

// Len returns the number of collected violations.
func (v *Violations) Len() int { return len(v.items) }

// Err returns nil when nothing was collected, otherwise a single
// VALIDATION_ERROR carrying every violation.
func (v *Violations) Err(message string) error {
	if len(v.items) == 0 {
		return nil
	}
	out := make([]Violation, len(v.items))
	copy(out, v.items)
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		Violations: out,
		HTTPStatus: http.StatusBadRequest,
	}
}
