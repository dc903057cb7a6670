package middleware

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/infrastructure/http/v1/dto"
	"tradeledger/pkg/logger"
)

const contentTypeJSON = "application/json; charset=utf-8"

// ErrorHandler middleware renders the last error of a request as an
// envelope. Internal errors are logged in full and hidden from the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		renderError(c)
	}
}

func renderError(c *gin.Context) {
	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}
	err := c.Errors.Last().Err

	if appErr, ok := apperror.AsAppError(err); !ok || appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), "request failed", "error", err)
	} else if appErr.Err != nil {
		logger.Warn(c.Request.Context(), "request rejected", "code", appErr.Code, "cause", appErr.Err)
	}

	status, env := dto.FromError(err, c.GetString("request_id"))
	Render(c, status, env)
}

// Render writes v as JSON and stores the exact bytes as the idempotent
// response of the request, if it carries a key.
func Render(c *gin.Context, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error(c.Request.Context(), "encode response", "error", err)
		status, body = 500, []byte(`{"success":false,"message":"Internal server error","data":null}`)
	}
	Complete(c, status, contentTypeJSON, body)
	c.Data(status, contentTypeJSON, body)
}
