package services

import (
	"context"

	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/realtime"
	"github.com/yungbote/lessonforge-backend/internal/realtime/bus"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.Hub.Broadcast(msg)
}

// RedisEmitter publishes to the bus; every API instance forwards bus
// messages into its own hub. A failed publish is delivered locally instead.
type RedisEmitter struct {
	Bus      bus.Bus
	Fallback *realtime.SSEHub
	Log      *logger.Logger
}

func (e *RedisEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if err := e.Bus.Publish(context.WithoutCancel(ctx), msg); err != nil {
		if e.Log != nil {
			e.Log.Warn("SSE publish failed; delivering locally", "channel", msg.Channel, "event", msg.Event, "error", err)
		}
		if e.Fallback != nil {
			e.Fallback.Broadcast(msg)
		}
	}
}
