package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge-backend/internal/data/db"
	"github.com/yungbote/lessonforge-backend/internal/data/repos"
	"github.com/yungbote/lessonforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
)

type recordingRunner struct {
	mu   sync.Mutex
	ids  map[uuid.UUID]int
	fail uuid.UUID
}

func (r *recordingRunner) Run(_ context.Context, id uuid.UUID) (pipeline.StepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = map[uuid.UUID]int{}
	}
	r.ids[id]++
	if id == r.fail {
		return pipeline.StepResult{}, errors.New("boom")
	}
	return pipeline.StepResult{LessonID: id, Status: "generated", Progress: 100}, nil
}

func TestSweepResumesOnlyStaleLessons(t *testing.T) {
	gdb := testutil.BareSQLite(t)
	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	old := time.Now().Add(-10 * time.Minute)
	staleA := testutil.SeedStaleLesson(t, ctx, gdb, "stale a", 30, old)
	staleB := testutil.SeedStaleLesson(t, ctx, gdb, "stale b", 0, old)
	fresh := testutil.SeedLesson(t, ctx, gdb, "fresh")
	leased := testutil.SeedLeasedLesson(t, ctx, gdb, "leased", old, time.Now().Add(time.Hour))
	testutil.SeedGeneratedLesson(t, ctx, gdb, "done", []byte(`{}`))

	runner := &recordingRunner{fail: staleB.ID}
	repo := repos.NewLessonRepo(gdb, testutil.Logger(t))
	s := NewRecoverySweeper(testutil.Logger(t), SweeperConfig{StaleAfter: time.Minute, Concurrency: 2}, repo, runner)

	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("resumed: want=2 got=%d", n)
	}
	if runner.ids[staleA.ID] != 1 || runner.ids[staleB.ID] != 1 {
		t.Fatalf("runs: want one each for stale lessons got=%v", runner.ids)
	}
	if _, ok := runner.ids[fresh.ID]; ok {
		t.Fatalf("fresh lesson must not be resumed")
	}
	if _, ok := runner.ids[leased.ID]; ok {
		t.Fatalf("lesson under a live lease must not be resumed")
	}
}

func TestSweepEmptyBatch(t *testing.T) {
	gdb := testutil.BareSQLite(t)
	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	runner := &recordingRunner{}
	s := NewRecoverySweeper(testutil.Logger(t), SweeperConfig{}, repos.NewLessonRepo(gdb, testutil.Logger(t)), runner)
	n, err := s.Sweep(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Sweep: want=0,nil got=%d,%v", n, err)
	}
	if s.cfg.Interval != time.Minute || s.cfg.StaleAfter != 90*time.Second || s.cfg.BatchSize != 10 {
		t.Fatalf("defaults: got=%+v", s.cfg)
	}
}
