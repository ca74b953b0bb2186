package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/lessonforge-backend/internal/clients/gemini"
	"github.com/yungbote/lessonforge-backend/internal/clients/huggingface"
	"github.com/yungbote/lessonforge-backend/internal/jobs/worker"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/visuals"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/services"
)

// wireServices builds the generation stack. Inline runs hang off base, which
// outlives any request.
func wireServices(
	ctx context.Context,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	emitter services.SSEEmitter,
	assets assetStore,
	tc temporalsdkclient.Client,
	base context.Context,
) (Services, error) {
	log.Info("Wiring services...")

	text, err := gemini.NewClient(ctx, log, cfg.Gemini)
	if err != nil {
		return Services{}, fmt.Errorf("init gemini client: %w", err)
	}
	images := huggingface.NewClient(log, cfg.HuggingFace)

	// a nil *AssetStore must not reach the interface
	var store visuals.AssetStore
	if assets != nil {
		store = assets
	}
	vis := visuals.NewGenerator(log, cfg.Visuals, text, images, store)

	notifier := services.NewLessonNotifier(emitter)
	orch := pipeline.NewOrchestrator(log, cfg.Pipeline, reposet.Lesson, text, vis, notifier)

	out := Services{
		Text:         text,
		Images:       images,
		Visuals:      vis,
		Orchestrator: orch,
		Notifier:     notifier,
	}

	switch cfg.Driver {
	case services.DriverTemporal:
		out.Dispatcher = services.NewTemporalDispatcher(log, tc, cfg.Temporal.TaskQueue)
	case services.DriverClient:
		out.Dispatcher = services.ClientDispatcher{}
	default:
		out.inline = services.NewInlineDispatcher(base, log, orch, cfg.InlineConcurrency)
		out.Dispatcher = out.inline
		out.Sweeper = worker.NewRecoverySweeper(log, cfg.Sweeper, reposet.Lesson, orch)
	}

	out.Lesson = services.NewLessonService(log, reposet.Lesson, text, orch, out.Dispatcher, notifier)
	return out, nil
}
