package app

import (
	httpapi "github.com/yungbote/lessonforge-backend/internal/http"
	httpH "github.com/yungbote/lessonforge-backend/internal/http/handlers"
	"github.com/yungbote/lessonforge-backend/internal/observability"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/realtime"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Lesson      *httpH.LessonHandler
	Realtime    *httpH.RealtimeHandler
	Diagnostics *httpH.DiagnosticsHandler
}

func wireHandlers(log *logger.Logger, svcs Services, hub *realtime.SSEHub, db httpH.Pinger) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(db),
		Lesson:      httpH.NewLessonHandler(log, svcs.Lesson),
		Realtime:    httpH.NewRealtimeHandler(log, hub, svcs.Lesson),
		Diagnostics: httpH.NewDiagnosticsHandler(log, svcs.Text, svcs.Visuals.ImagesConfigured, svcs.Dispatcher.Driver()),
	}
}

func wireServer(log *logger.Logger, metrics *observability.Metrics, otelService string, hub *realtime.SSEHub, svcs Services, db httpH.Pinger) *httpapi.Server {
	h := wireHandlers(log, svcs, hub, db)
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:                log,
		Metrics:            metrics,
		OtelService:        otelService,
		LessonHandler:      h.Lesson,
		RealtimeHandler:    h.Realtime,
		DiagnosticsHandler: h.Diagnostics,
		HealthHandler:      h.Health,
	})
}
