package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"tradeledger/pkg/logger"
)

// Logger middleware logs HTTP requests with timing and status. The request
// logger is also put into the context for handlers and services.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		reqLog := log.WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), reqLog))

		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "error", c.Errors.Last().Error())
		}
		if status >= 500 {
			reqLog.Errorw("http request", kv...)
			return
		}
		reqLog.Infow("http request", kv...)
	}
}
