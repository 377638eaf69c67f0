package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ines/audigest/internal/logger"
)

// RequestLogger returns a Gin middleware that injects a request-scoped logger.
// Parameters:
//   - log: base logger to enrich with request fields.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := uuid.New().String()

		// Inject tracing fields into context
		reqLog := log.WithFields(logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		ctx := reqLog.WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		// Also store logger in Gin's context for convenience
		c.Set("logger", reqLog)

		c.Header("X-Request-ID", requestID)

		logger.CtxInfo(ctx, "Request started: method=%s, path=%s, client_ip=%s",
			c.Request.Method, path, c.ClientIP())

		c.Next()

		latency := time.Since(start)
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}

		reqLog.WithFields(logger.Fields{
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: latency.Milliseconds(),
		}).Infof("Request completed: method=%s, path=%s", c.Request.Method, fullPath)
	}
}

// GetLogger extracts logger from Gin context or request context.
// Parameters:
//   - c: Gin request context.
// Returns:
//   - *logger.Logger: request-scoped logger or default logger.
func GetLogger(c *gin.Context) *logger.Logger {
	if l, exists := c.Get("logger"); exists {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.FromContext(c.Request.Context())
}
