// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/core/apperror"
	"tradeledger/pkg/logger"
)

// Recovery turns a panic into a 500 envelope. The stack goes to the log
// only. A panic mid-transaction has already rolled the transaction back by
// the time it reaches here.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.FromContext(c.Request.Context()).Errorw("handler panicked",
				"panic", r,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", r)))
			c.Abort()
			renderError(c)
		}()
		c.Next()
	}
}
