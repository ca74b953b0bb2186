package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/temporalx/lessonrun"
)

const (
	DriverInline   = "inline"
	DriverTemporal = "temporal"
	DriverClient   = "client"
)

// Dispatcher hands a lesson to whatever drives its steps.
type Dispatcher interface {
	Dispatch(ctx context.Context, lessonID uuid.UUID) error
	Driver() string
}

type LessonRunner interface {
	Run(ctx context.Context, lessonID uuid.UUID) (pipeline.StepResult, error)
}

// InlineDispatcher runs lessons in-process, bounded by a semaphore. Runs are
// detached from the request and stop when base is cancelled.
type InlineDispatcher struct {
	log    *logger.Logger
	base   context.Context
	runner LessonRunner
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

func NewInlineDispatcher(base context.Context, baseLog *logger.Logger, runner LessonRunner, concurrency int) *InlineDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &InlineDispatcher{
		log:    baseLog.With("service", "InlineDispatcher"),
		base:   base,
		runner: runner,
		sem:    semaphore.NewWeighted(int64(concurrency)),
	}
}

func (d *InlineDispatcher) Driver() string { return DriverInline }

func (d *InlineDispatcher) Dispatch(ctx context.Context, lessonID uuid.UUID) error {
	if err := d.base.Err(); err != nil {
		return fmt.Errorf("inline dispatcher stopped: %w", err)
	}
	runCtx := ctxutil.Carry(d.base, ctx)
	log := d.log.With(ctxutil.LogFields(runCtx)...)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(runCtx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		res, err := d.runner.Run(runCtx, lessonID)
		if err != nil {
			log.Warn("Inline lesson run ended early", "lesson_id", lessonID, "error", err)
			return
		}
		log.Info("Inline lesson run finished", "lesson_id", lessonID, "status", res.Status, "progress", res.Progress)
	}()
	return nil
}

// Wait blocks until every dispatched run has returned.
func (d *InlineDispatcher) Wait() { d.wg.Wait() }

// ClientDispatcher leaves stepping to the browser.
type ClientDispatcher struct{}

func (ClientDispatcher) Driver() string { return DriverClient }

func (ClientDispatcher) Dispatch(context.Context, uuid.UUID) error { return nil }

// TemporalDispatcher starts one lesson_run workflow per lesson.
type TemporalDispatcher struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewTemporalDispatcher(baseLog *logger.Logger, tc temporalsdkclient.Client, taskQueue string) *TemporalDispatcher {
	tq := strings.TrimSpace(taskQueue)
	if tq == "" {
		tq = "lessonforge"
	}
	return &TemporalDispatcher{
		log:       baseLog.With("service", "TemporalDispatcher"),
		tc:        tc,
		taskQueue: tq,
	}
}

func (d *TemporalDispatcher) Driver() string { return DriverTemporal }

func (d *TemporalDispatcher) Dispatch(ctx context.Context, lessonID uuid.UUID) error {
	if d == nil || d.tc == nil || lessonID == uuid.Nil {
		return fmt.Errorf("temporal not configured")
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    lessonrun.WorkflowID(lessonID),
		TaskQueue:             d.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	_, err := d.tc.ExecuteWorkflow(ctx, opts, lessonrun.WorkflowName, lessonID.String())
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		d.log.Debug("lesson workflow already running", "lesson_id", lessonID)
		return nil
	}
	return err
}
