package lessonrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/lessonforge-backend/internal/data/repos"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	pkgerrors "github.com/yungbote/lessonforge-backend/internal/pkg/errors"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type Advancer interface {
	Advance(ctx context.Context, lessonID uuid.UUID, step pipeline.Step) (pipeline.StepResult, error)
}

type Activities struct {
	Log          *logger.Logger
	Orchestrator Advancer
}

func (a *Activities) Advance(ctx context.Context, lessonID string) (AdvanceResult, error) {
	res := AdvanceResult{LessonID: strings.TrimSpace(lessonID)}
	if a == nil || a.Orchestrator == nil {
		return res, fmt.Errorf("lessonrun: activity not configured")
	}
	id, err := uuid.Parse(res.LessonID)
	if err != nil || id == uuid.Nil {
		return res, temporal.NewNonRetryableApplicationError("invalid lesson_id", "InvalidLessonID", err)
	}

	stopHB := startHeartbeat(ctx)
	defer stopHB()

	out, err := a.Orchestrator.Advance(ctx, id, "")
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrLeaseHeld), errors.Is(err, repos.ErrLeaseLost):
		res.LeaseHeld = true
		res.Status = out.Status
		return res, nil
	case errors.Is(err, pkgerrors.ErrNotFound):
		return res, temporal.NewNonRetryableApplicationError("lesson not found", "LessonNotFound", err)
	default:
		if a.Log != nil {
			a.Log.Warn("Lesson step failed; activity will retry", "lesson_id", id, "error", err)
		}
		return res, err
	}

	res.Step = string(out.Step)
	res.Status = out.Status
	res.Stage = out.Stage
	res.Progress = out.Progress
	res.Error = out.Error
	return res, nil
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		hb := time.NewTicker(10 * time.Second)
		defer hb.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-hb.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
