package api

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"upscaler/internal/logging"
	"upscaler/internal/services"
)

const requestIDHeader = "X-Request-ID"

// requestContext stamps every request with a correlation id, reusing the
// caller's when supplied.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []logging.Attr{
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
		}
		if id := c.Param("job_id"); id != "" {
			attrs = append(attrs, logging.String(logging.FieldJobID, id))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, logging.String("errors", c.Errors.String()))
		}
		reqLogger := logging.WithContext(c.Request.Context(), logger)
		switch {
		case c.Writer.Status() >= 500:
			reqLogger.Error("request failed", logging.Args(attrs...)...)
		case c.FullPath() == "/health" || c.FullPath() == "/status/:job_id":
			reqLogger.Debug("request handled", logging.Args(attrs...)...)
		default:
			reqLogger.Info("request handled", logging.Args(attrs...)...)
		}
	}
}

func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logging.ErrorWithContext(logging.WithContext(c.Request.Context(), logger), "handler panic", "api_panic",
			logging.String("panic", fmt.Sprint(recovered)),
			logging.String("path", c.Request.URL.Path),
		)
		internal(c, "internal server error")
	})
}
