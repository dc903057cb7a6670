package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolations_ReportsAllAtOnce(t *testing.T) {
	var v Violations
	require.NoError(t, v.Err("invoice is invalid"))

	v.Add("lines", "at least one line is required")
	v.Addf("due_date", "due date %s is before document date %s", "2024-01-01", "2024-02-01")

	err := v.Err("invoice is invalid")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Len(t, appErr.Violations, 2)
	assert.Equal(t, "lines", appErr.Violations[0].Field)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)

	// later additions do not leak into an already returned error
	v.Add("currency", "required")
	assert.Len(t, appErr.Violations, 2)
}

func TestOverpayment_NamesMaximum(t *testing.T) {
	err := NewOverpayment("FAC-2024-00001", decimal.RequireFromString("10.00"), decimal.RequireFromString("2.50"))

	assert.True(t, IsOverpayment(err))
	assert.Equal(t, "2.5", err.Details["max_acceptable"])
	assert.Contains(t, err.Error(), "FAC-2024-00001")
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	base := NewInvalidState("invoice", "FAC-2024-00002", "validated", "add line to")
	wrapped := fmt.Errorf("service: %w", base)

	assert.True(t, IsInvalidState(wrapped))
	assert.False(t, IsConfiguration(wrapped))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(wrapped))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
}
