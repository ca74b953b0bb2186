package lessonrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
)

const (
	leaseHeldPollInterval = 5 * time.Second
	continueStepLimit     = 2000
	continueHistoryLimit  = 15000
)

// Workflow advances one lesson a step per activity until it is terminal. A
// lesson that ends in error completes the workflow normally: the failure is
// already persisted on the record.
func Workflow(ctx workflow.Context, lessonID string) error {
	lessonID = strings.TrimSpace(lessonID)
	if lessonID == "" {
		return fmt.Errorf("lessonrun: missing lesson_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	})

	log := workflow.GetLogger(ctx)
	steps := 0
	for {
		steps++
		var out AdvanceResult
		if err := workflow.ExecuteActivity(ctx, ActivityAdvance, lessonID).Get(ctx, &out); err != nil {
			return err
		}

		if lessons.IsTerminalStatus(out.Status) {
			if out.Status == lessons.StatusError {
				log.Warn("lesson ended in error", "lesson_id", lessonID, "error", out.Error)
			}
			return nil
		}
		if out.LeaseHeld {
			if err := workflow.Sleep(ctx, leaseHeldPollInterval); err != nil {
				return err
			}
		}
		if shouldContinueAsNew(ctx, steps, continueStepLimit, continueHistoryLimit) {
			return workflow.NewContinueAsNewError(ctx, Workflow, lessonID)
		}
	}
}

func shouldContinueAsNew(ctx workflow.Context, steps int, maxSteps int, maxHistory int) bool {
	if maxSteps > 0 && steps >= maxSteps {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil || maxHistory <= 0 {
		return false
	}
	return info.GetCurrentHistoryLength() >= maxHistory
}
