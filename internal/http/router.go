package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lessonforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lessonforge-backend/internal/http/middleware"
	"github.com/yungbote/lessonforge-backend/internal/observability"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	OtelService string

	LessonHandler      *httpH.LessonHandler
	RealtimeHandler    *httpH.RealtimeHandler
	DiagnosticsHandler *httpH.DiagnosticsHandler
	HealthHandler      *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.OtelService != "" {
		r.Use(otelgin.Middleware(cfg.OtelService))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.DiagnosticsHandler != nil {
			api.GET("/diagnostics", cfg.DiagnosticsHandler.Config)
			api.GET("/diagnostics/text-generation", cfg.DiagnosticsHandler.PingText)
		}

		// Lessons
		if cfg.LessonHandler != nil {
			api.POST("/lessons", cfg.LessonHandler.Create)
			api.GET("/lessons", cfg.LessonHandler.List)
			api.GET("/lessons/:id", cfg.LessonHandler.Get)
			api.GET("/lessons/:id/status", cfg.LessonHandler.Status)
			api.POST("/lessons/:id/steps", cfg.LessonHandler.AdvanceStep)
			api.POST("/lessons/:id/run", cfg.LessonHandler.Run)
			api.POST("/process-queue", cfg.LessonHandler.ProcessQueue)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/lessons/:id/events", cfg.RealtimeHandler.LessonStream)
		}
	}

	return r
}
