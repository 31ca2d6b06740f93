package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-payhooks/core"
	"github.com/google/uuid"
)

const (
	HeaderRequestID  = "X-Request-ID"
	contextRequestID = "payhooks.request_id"
)

// CORS allows the configured origins. "*" allows any origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := map[string]struct{}{}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin != "" {
			_, ok := allowed[strings.TrimRight(origin, "/")]
			switch {
			case allowAll:
				c.Header("Access-Control-Allow-Origin", "*")
			case ok:
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, X-Request-ID, X-Paystack-Signature")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID propagates an inbound X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(contextRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	if value, ok := c.Get(contextRequestID); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

// AccessLog writes one structured line per request.
func AccessLog(logger core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()

		if logger == nil {
			return
		}
		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"request_id", requestIDFrom(c),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.Last().Error())
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("http request", args...)
		case status >= http.StatusBadRequest:
			logger.Warn("http request", args...)
		default:
			logger.Info("http request", args...)
		}
	}
}
