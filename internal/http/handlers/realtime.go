package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/realtime"
	"github.com/yungbote/lessonforge-backend/internal/services"
)

type RealtimeHandler struct {
	Log     *logger.Logger
	Hub     *realtime.SSEHub
	Lessons services.LessonService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, lessons services.LessonService) *RealtimeHandler {
	return &RealtimeHandler{
		Log:     log.With("handler", "RealtimeHandler"),
		Hub:     hub,
		Lessons: lessons,
	}
}

// GET /api/lessons/:id/events
//
// The first event is always a snapshot of the current status. Terminal
// lessons get the snapshot and the stream ends.
func (h *RealtimeHandler) LessonStream(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	client := h.Hub.NewSSEClient()
	channel := realtime.LessonChannel(id)
	h.Hub.AddChannel(client, channel)
	st, err := h.Lessons.Status(c.Request.Context(), id)
	if err != nil {
		h.Hub.CloseClient(client)
		respondLessonError(c, h.Log, err)
		return
	}
	// Events published while the status was read stay queued behind it.
	h.Hub.SendFirst(client, realtime.SSEMessage{
		Channel: channel,
		Event:   realtime.SSEEventLessonSnapshot,
		Data:    st,
	})
	if lessons.IsTerminalStatus(st.Status) {
		h.Hub.CloseClient(client)
	}

	h.Log.Debug("SSE stream open", "lesson_id", id, "sse_client_id", client.ID)
	h.Hub.ServeHTTP(c.Writer, c.Request, client)
	h.Hub.CloseClient(client)
}
