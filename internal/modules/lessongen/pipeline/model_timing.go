package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

// timeModelCall logs one text-model round trip. The returned func takes the
// call's error and the size of what came back.
func timeModelCall(ctx context.Context, log *logger.Logger, call string, lessonID uuid.UUID, promptChars int) func(err error, outputChars int) {
	start := time.Now()
	return func(err error, outputChars int) {
		if log == nil {
			return
		}
		kv := append([]any{
			"model_call", call,
			"lesson_id", lessonID,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"prompt_chars", promptChars,
		}, ctxutil.LogFields(ctx)...)
		if err != nil {
			log.Warn("model call failed", append(kv, "error", err.Error())...)
			return
		}
		log.Info("model call finished", append(kv, "output_chars", outputChars)...)
	}
}
