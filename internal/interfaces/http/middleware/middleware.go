// Package middleware holds the gin middleware stack for the engine's HTTP
// surface: request IDs, structured request logging, panic recovery, and
// CORS.  Auth is deliberately absent; the engine runs behind the platform
// gateway which owns authentication.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/common"
)

// RequestIDKey is the gin context key carrying the request ID.
const RequestIDKey = "request_id"

// RequestIDHeader is the inbound/outbound request ID header.
const RequestIDHeader = "X-Request-ID"

// HTTPMetrics receives per-request telemetry.  The prometheus package's
// DecisionMetrics satisfies it.
type HTTPMetrics interface {
	HTTPRequestObserved(method, path string, status int, d time.Duration)
}

// RequestID propagates the caller's request ID or mints one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(RequestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// RequestLogger logs one structured entry per request and feeds metrics.
// The metrics path label is the route template, not the raw URL, to bound
// cardinality.
func RequestLogger(log logging.Logger, metrics HTTPMetrics) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", status),
			logging.Duration("elapsed", elapsed),
			logging.String("request_id", GetRequestID(c)),
		}
		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request served", fields...)
		}

		if metrics != nil {
			metrics.HTTPRequestObserved(c.Request.Method, path, status, elapsed)
		}
	}
}

// Recovery converts panics into a 500 with the standard error envelope.
func Recovery(log logging.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panicked",
					logging.Any("panic", r),
					logging.String("path", c.Request.URL.Path),
					logging.String("request_id", GetRequestID(c)),
				)
				resp := common.NewErrorResponse(
					errors.ErrCodeInternal.String(),
					errors.DefaultMessageForCode(errors.ErrCodeInternal),
				)
				resp.RequestID = GetRequestID(c)
				c.AbortWithStatusJSON(errors.HTTPStatusForCode(errors.ErrCodeInternal), resp)
			}
		}()
		c.Next()
	}
}

// CORS applies a permissive policy suitable for the internal dashboard.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
