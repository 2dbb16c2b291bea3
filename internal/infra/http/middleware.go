package http

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"contractseal/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	// headerActorID carries the already-authenticated caller supplied by the
	// hosting application.
	headerActorID = "X-Actor-ID"

	ctxRequestID = "request_id"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Set(ctxRequestID, id)

		ctx := logging.WithRequestID(c.Request.Context(), id)
		if actor := c.GetHeader(headerActorID); actor != "" {
			ctx = logging.WithActorID(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxRequestID),
		}
		if query != "" {
			attrs = append(attrs, "query", query)
		}

		switch {
		case status >= 500:
			logger.Error("request completed", attrs...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

func recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				id := c.GetString(ctxRequestID)
				logger.Error("panic recovered",
					"error", rec,
					"request_id", id,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
					Code:    "INTERNAL",
					Message: "internal server error",
					Details: map[string]any{"request_id": id},
				})
			}
		}()
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return c.GetHeader(headerActorID)
}
