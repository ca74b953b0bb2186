package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/httpx"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/temporalx"
	"github.com/yungbote/lessonforge-backend/internal/temporalx/lessonrun"
)

type Runner struct {
	log *logger.Logger
	cfg temporalx.Config

	tc           temporalsdkclient.Client
	orchestrator lessonrun.Advancer
	concurrency  int
}

func NewRunner(log *logger.Logger, cfg temporalx.Config, tc temporalsdkclient.Client, orchestrator lessonrun.Advancer) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("temporal worker missing orchestrator")
	}
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4, log)
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		log:          log.With("component", "TemporalWorker"),
		cfg:          cfg,
		tc:           tc,
		orchestrator: orchestrator,
		concurrency:  concurrency,
	}, nil
}

// Start polls the task queue until ctx is done. Start failures are retried
// until TEMPORAL_WORKER_START_MAX_WAIT_SECONDS elapses.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "concurrency", r.concurrency)

	maxWait := envutil.Seconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60, nil)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		missingNamespace := errors.As(startErr, &nfe)
		if missingNamespace && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			if missingNamespace {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}

		r.log.Warn("Temporal worker failed to start; retrying", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "attempt", attempt, "error", startErr)
		if err := httpx.Sleep(ctx, httpx.Backoff(r.cfg.Backoff, r.cfg.BackoffMax, attempt)); err != nil {
			return err
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.concurrency,
	})
	acts := &lessonrun.Activities{
		Log:          r.log,
		Orchestrator: r.orchestrator,
	}
	w.RegisterWorkflowWithOptions(lessonrun.Workflow, workflow.RegisterOptions{Name: lessonrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Advance, activity.RegisterOptions{Name: lessonrun.ActivityAdvance})
	return w
}
