// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"calibrator-service/internal/utils"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope instead of
// tearing down the server. A panicking request must never leave the bus
// mutex or the HTTP connection in a broken state.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("Request handler panicked",
				zap.Any("value", r),
				zap.String("request", c.Request.Method+" "+c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Stack("stack"),
			)
			if !c.Writer.Written() {
				utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
			}
			c.Abort()
		}()
		c.Next()
	}
}
