package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/lessonforge-backend/internal/domain"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type StaleLister interface {
	ListStale(dbc dbctx.Context, olderThan time.Time, limit int) ([]*types.Lesson, error)
}

type Runner interface {
	Run(ctx context.Context, lessonID uuid.UUID) (pipeline.StepResult, error)
}

type SweeperConfig struct {
	Interval    time.Duration
	StaleAfter  time.Duration
	BatchSize   int
	Concurrency int
}

func SweeperConfigFromEnv(log *logger.Logger) SweeperConfig {
	return SweeperConfig{
		Interval:    envutil.Seconds("RECOVERY_INTERVAL_SECONDS", 60, log),
		StaleAfter:  envutil.Seconds("RECOVERY_STALE_SECONDS", 90, log),
		BatchSize:   envutil.Int("RECOVERY_BATCH_SIZE", 10, log),
		Concurrency: envutil.Int("INLINE_CONCURRENCY", 4, log),
	}
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 90 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return c
}

// RecoverySweeper resumes generating lessons whose driver went away, e.g.
// after a restart. The lease makes a resume racing a live run harmless.
type RecoverySweeper struct {
	log    *logger.Logger
	cfg    SweeperConfig
	store  StaleLister
	runner Runner
	now    func() time.Time
}

func NewRecoverySweeper(baseLog *logger.Logger, cfg SweeperConfig, store StaleLister, runner Runner) *RecoverySweeper {
	return &RecoverySweeper{
		log:    baseLog.With("component", "RecoverySweeper"),
		cfg:    cfg.withDefaults(),
		store:  store,
		runner: runner,
		now:    time.Now,
	}
}

func (s *RecoverySweeper) Start(ctx context.Context) {
	s.log.Info("Starting recovery sweeper", "interval", s.cfg.Interval, "stale_after", s.cfg.StaleAfter, "concurrency", s.cfg.Concurrency)
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Recovery sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.log.Warn("Recovery sweep failed", "error", err)
				}
			}
		}
	}()
}

// Sweep resumes one batch of stale lessons and reports how many were picked up.
func (s *RecoverySweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.store.ListStale(dbctx.New(ctx), s.now().Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Concurrency)
	for _, l := range stale {
		id := l.ID
		progress := l.Progress
		eg.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("Lesson resume panic", "lesson_id", id, "panic", r)
				}
			}()
			s.log.Info("Resuming stale lesson", "lesson_id", id, "progress", progress)
			res, err := s.runner.Run(egCtx, id)
			if err != nil {
				// One lesson failing to resume must not cancel the rest of the batch.
				s.log.Warn("Stale lesson resume ended early", "lesson_id", id, "error", err)
				return nil
			}
			s.log.Info("Stale lesson resumed", "lesson_id", id, "status", res.Status, "progress", res.Progress)
			return nil
		})
	}
	_ = eg.Wait()
	return len(stale), nil
}
