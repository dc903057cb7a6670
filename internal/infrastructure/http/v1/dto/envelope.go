// Package dto provides the request and response bodies of the HTTP API.
package dto

import (
	"errors"
	"net/http"

	"tradeledger/internal/core/apperror"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    any         `json:"data"`
	Errors  []ErrorItem `json:"errors,omitempty"`
}

// ErrorItem describes one failure. Validation errors produce one item per
// violated precondition.
type ErrorItem struct {
	Code    string         `json:"code"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// OK wraps data in a success envelope.
func OK(message string, data any) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

// FromError renders err as a failure envelope with its HTTP status.
// Errors that are not AppErrors are reported as internal without detail.
func FromError(err error, requestID string) (int, Envelope) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.NewInternal(err)
	}

	env := Envelope{Success: false, Message: appErr.Message}
	details := appErr.Details
	if appErr.Code == apperror.CodeInternal {
		details = map[string]any{"request_id": requestID}
	}

	if len(appErr.Violations) > 0 {
		for _, v := range appErr.Violations {
			env.Errors = append(env.Errors, ErrorItem{
				Code:    appErr.Code,
				Field:   v.Field,
				Message: v.Message,
				Details: details,
			})
		}
	} else {
		env.Errors = []ErrorItem{{Code: appErr.Code, Message: appErr.Message, Details: details}}
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, env
}
