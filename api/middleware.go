package api

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequireAPIKey rejects requests without a valid x-api-key header with 401,
// answering "API key missing" or "Invalid API key".
// Clients that fail too often are answered with 429 until their block
// expires; the key is not checked while blocked.
func RequireAPIKey(verifier *KeyVerifier, limiter *FailureLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()

		if limiter != nil {
			if ok, retry := limiter.Allow(client); !ok {
				c.Header("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retry.Seconds()))))
				abortWithError(c, http.StatusTooManyRequests, "Too many failed authentication attempts")
				return
			}
		}

		key := c.GetHeader(APIKeyHeader)
		if key == "" || !verifier.Verify(key) {
			if limiter != nil {
				limiter.RecordFailure(client)
			}
			msg := "Invalid API key"
			if key == "" {
				msg = "API key missing"
			}
			logger.Warn("Rejected request",
				zap.String("reason", msg),
				zap.String("client_ip", client),
				zap.String("path", c.Request.URL.Path),
			)
			abortWithError(c, http.StatusUnauthorized, msg)
			return
		}

		if limiter != nil {
			limiter.Reset(client)
		}
		c.Next()
	}
}

// LimitBody caps the request body at limit bytes. Reading past the limit
// fails with *http.MaxBytesError, which handlers turn into 413.
func LimitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			abortWithError(c, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// RequestLogger logs one line per request with its status and duration.
// Paths in skip are not logged.
func RequestLogger(logger *zap.Logger, skip ...string) gin.HandlerFunc {
	skipPaths := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipPaths[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if skipPaths[path] {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("bytes", c.Writer.Size()),
		}
		if id := c.Writer.Header().Get(GenerationIDHeader); id != "" {
			fields = append(fields, zap.String("generation_id", id))
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 JSON error.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Handler panic",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
	})
}
