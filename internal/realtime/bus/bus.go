package bus

import (
	"context"

	"github.com/yungbote/lessonforge-backend/internal/realtime"
)

// Bus carries lesson events between processes: a Temporal worker or another
// API instance publishes, and every API instance forwards into its own hub
// so SSE clients see events no matter which process ran the step.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
