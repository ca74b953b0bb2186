package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

// quietRoutes are polled often enough that a successful hit only logs at debug.
var quietRoutes = map[string]bool{
	"/healthcheck":            true,
	"/metrics":                true,
	"/api/lessons/:id/status": true,
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if log == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil && td.LessonID != "" {
			fields = append(fields, "lesson_id", td.LessonID)
		}
		fields = append(fields, ctxutil.LogFields(c.Request.Context())...)
		if isEventStream(c) {
			fields = append(fields, "stream", true)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		case quietRoutes[c.FullPath()]:
			log.Debug("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

func isEventStream(c *gin.Context) bool {
	return c.Writer.Header().Get("Content-Type") == "text/event-stream"
}
