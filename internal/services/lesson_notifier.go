package services

import (
	"context"

	types "github.com/yungbote/lessonforge-backend/internal/domain"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/realtime"
)

type LessonNotifier interface {
	pipeline.Notifier
	LessonCreated(ctx context.Context, lesson *types.Lesson)
}

type lessonNotifier struct {
	emit SSEEmitter
}

func NewLessonNotifier(emit SSEEmitter) LessonNotifier {
	return &lessonNotifier{emit: emit}
}

func (n *lessonNotifier) LessonCreated(ctx context.Context, lesson *types.Lesson) {
	if lesson == nil {
		return
	}
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.LessonChannel(lesson.ID),
		Event:   realtime.SSEEventLessonCreated,
		Data: map[string]any{
			"lesson_id": lesson.ID,
			"status":    lesson.Status,
			"stage":     lesson.Stage,
			"progress":  lesson.Progress,
		},
	})
}

func (n *lessonNotifier) LessonProgress(ctx context.Context, s pipeline.Snapshot) {
	n.send(ctx, realtime.SSEEventLessonProgress, s)
}

func (n *lessonNotifier) LessonFailed(ctx context.Context, s pipeline.Snapshot) {
	n.send(ctx, realtime.SSEEventLessonFailed, s)
}

func (n *lessonNotifier) LessonDone(ctx context.Context, s pipeline.Snapshot) {
	n.send(ctx, realtime.SSEEventLessonDone, s)
}

func (n *lessonNotifier) send(ctx context.Context, event realtime.SSEEvent, s pipeline.Snapshot) {
	data := map[string]any{
		"lesson_id": s.LessonID,
		"status":    s.Status,
		"stage":     s.Stage,
		"progress":  s.Progress,
	}
	if s.ErrorMessage != "" {
		data["error"] = s.ErrorMessage
	}
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.LessonChannel(s.LessonID),
		Event:   event,
		Data:    data,
	})
}
