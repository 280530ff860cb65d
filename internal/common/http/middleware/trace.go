package middleware

import (
	"context"
	"net/http"
	"time"

	"codepad/pkg/utils/contextkey"
	"codepad/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	maxIDLength = 64
)

// TraceContextMiddleware puts trace and request ids into both the gin and
// request contexts and echoes them as response headers. Well-formed incoming
// ids are kept; anything else is replaced with a fresh uuid.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		for _, id := range []struct {
			header string
			key    interface{ String() string }
		}{
			{traceIDHeader, contextkey.TraceID},
			{requestIDHeader, contextkey.RequestID},
		} {
			value := c.GetHeader(id.header)
			if !validID(value) {
				value = uuid.NewString()
			}
			c.Set(id.key.String(), value)
			ctx = context.WithValue(ctx, id.key, value)
			c.Writer.Header().Set(id.header, value)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// validID accepts short ids made of letters, digits, '-', '_' and '.'.
func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// AccessLogMiddleware logs one line per finished request: server errors at
// error level, client errors at warn, the rest at info.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "http request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn(ctx, "http request", fields...)
		default:
			logger.Info(ctx, "http request", fields...)
		}
	}
}
