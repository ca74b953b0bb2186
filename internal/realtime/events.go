package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventLessonSnapshot SSEEvent = "LessonSnapshot"
	SSEEventLessonCreated  SSEEvent = "LessonCreated"
	SSEEventLessonProgress SSEEvent = "LessonProgress"
	SSEEventLessonFailed   SSEEvent = "LessonFailed"
	SSEEventLessonDone     SSEEvent = "LessonDone"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// LessonChannel is the channel every event about one lesson goes to.
func LessonChannel(id uuid.UUID) string {
	return "lesson:" + id.String()
}
