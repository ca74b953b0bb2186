package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/lessonforge-backend/internal/clients/gemini"
	"github.com/yungbote/lessonforge-backend/internal/data/repos"
	types "github.com/yungbote/lessonforge-backend/internal/domain"
	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/visuals"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type harness struct {
	store    *memStore
	text     *scriptedText
	visuals  *stubVisuals
	notifier *recordingNotifier
	orch     *Orchestrator
}

func newHarness(cfg Config, responses ...textResponse) *harness {
	h := &harness{
		store:    newMemStore(),
		text:     &scriptedText{responses: responses},
		visuals:  &stubVisuals{},
		notifier: &recordingNotifier{},
	}
	h.orch = NewOrchestrator(logger.NewNop(), cfg, h.store, h.text, h.visuals, h.notifier)
	h.orch.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

func decode(t *testing.T, l types.Lesson) *types.Document {
	t.Helper()
	var doc types.Document
	if err := json.Unmarshal(l.Content, &doc); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	return &doc
}

func TestNextStep(t *testing.T) {
	cases := map[int]Step{
		0: StepGenerateContent, 9: StepGenerateContent,
		10: StepParseAndSaveContent, 29: StepParseAndSaveContent,
		30: StepGenerateVisuals, 50: StepGenerateVisuals, 89: StepGenerateVisuals,
		90: StepFinalize, 100: StepFinalize,
	}
	for p, want := range cases {
		if got := NextStep(p); got != want {
			t.Fatalf("NextStep(%d): want=%s got=%s", p, want, got)
		}
	}
}

func TestParseStep(t *testing.T) {
	if s, err := ParseStep(" generatevisuals "); err != nil || s != StepGenerateVisuals {
		t.Fatalf("ParseStep: want=%s got=%s err=%v", StepGenerateVisuals, s, err)
	}
	if s, err := ParseStep(""); err != nil || s != "" {
		t.Fatalf("ParseStep(empty): got=%q err=%v", s, err)
	}
	if _, err := ParseStep("publish"); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("ParseStep(publish): want ErrUnknownStep got=%v", err)
	}
}

func TestVisualProgress(t *testing.T) {
	if got := visualProgress(0, 0); got != 90 {
		t.Fatalf("no sections: want=90 got=%d", got)
	}
	if got := visualProgress(1, 2); got != 70 {
		t.Fatalf("half: want=70 got=%d", got)
	}
	if got := visualProgress(2, 3); got >= 90 {
		t.Fatalf("partial must stay below 90, got=%d", got)
	}
	if got := visualProgress(3, 3); got != 90 {
		t.Fatalf("all: want=90 got=%d", got)
	}
}

func TestRunCompletesLesson(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")

	res, err := h.orch.Run(context.Background(), id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != lessons.StatusGenerated || res.Progress != 100 {
		t.Fatalf("result: want generated/100 got=%s/%d", res.Status, res.Progress)
	}

	got := h.store.get(id)
	if got.Stage != lessons.StageCompleted {
		t.Fatalf("stage: want=%s got=%s", lessons.StageCompleted, got.Stage)
	}
	if got.LeaseToken != nil {
		t.Fatalf("lease: want released")
	}
	doc := decode(t, got)
	if doc.Content.Sections[0].CodeExample != nil {
		t.Fatalf("science lesson kept its code example")
	}
	if doc.Assessment == nil || doc.Assessment.TotalQuestions != 1 {
		t.Fatalf("assessment: want 1 valid question, got=%+v", doc.Assessment)
	}
	if doc.Metadata.GeneratedBy != "gemini-test" {
		t.Fatalf("generatedBy: want=gemini-test got=%s", doc.Metadata.GeneratedBy)
	}
	if doc.Content.Sections[2].GeneratedVisual != nil {
		t.Fatalf("section without visuals should not be attempted")
	}
	if got.DiagramAsset == "" || got.DiagramAsset != *doc.Content.Sections[0].GeneratedVisual {
		t.Fatalf("diagram_asset: want first visual got=%q", got.DiagramAsset)
	}
	if len(h.visuals.calls) != 2 {
		t.Fatalf("visual calls: want=2 got=%d", len(h.visuals.calls))
	}
	if len(h.notifier.done) != 1 {
		t.Fatalf("done events: want=1 got=%d", len(h.notifier.done))
	}
}

func TestRunProgressIsMonotonic(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")
	if _, err := h.orch.Run(context.Background(), id); err != nil {
		t.Fatalf("Run: %v", err)
	}
	prev := -1
	for _, p := range h.store.progressLog {
		if p < prev {
			t.Fatalf("progress decreased: %v", h.store.progressLog)
		}
		prev = p
	}
	if prev != 100 {
		t.Fatalf("final progress: want=100 got=%d", prev)
	}
}

func TestRunVisualFailureIsNotFatal(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	h.visuals.result = func(int) visuals.Result { return visuals.Result{Source: visuals.SourceNone} }
	id := h.store.add("photosynthesis")

	res, err := h.orch.Run(context.Background(), id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != lessons.StatusGenerated {
		t.Fatalf("status: want=generated got=%s", res.Status)
	}
	doc := decode(t, h.store.get(id))
	for i := 0; i < 2; i++ {
		v := doc.Content.Sections[i].GeneratedVisual
		if v == nil || *v != "" {
			t.Fatalf("section %d: want attempted empty visual got=%v", i, v)
		}
	}
	if h.store.get(id).DiagramAsset != "" {
		t.Fatalf("diagram_asset: want empty")
	}
}

func TestRunInvalidContentMarksError(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: "I cannot help with that."})
	id := h.store.add("photosynthesis")

	res, err := h.orch.Run(context.Background(), id)
	if err != nil {
		t.Fatalf("Run: want nil error got=%v", err)
	}
	if res.Status != lessons.StatusError {
		t.Fatalf("status: want=error got=%s", res.Status)
	}
	if !strings.HasPrefix(res.Error, "AI generated invalid JSON content") {
		t.Fatalf("error: got=%q", res.Error)
	}
	got := h.store.get(id)
	if got.Stage != lessons.StageFailed || got.Progress != ProgressContentGenerated {
		t.Fatalf("record: got stage=%s progress=%d", got.Stage, got.Progress)
	}
	if len(h.notifier.failed) != 1 {
		t.Fatalf("failed events: want=1 got=%d", len(h.notifier.failed))
	}
}

func TestRunTextFailureMarksError(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{err: &gemini.TimeoutError{Timeout: time.Second}})
	id := h.store.add("photosynthesis")

	res, err := h.orch.Run(context.Background(), id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != lessons.StatusError || !strings.Contains(res.Error, "failed to generate content with Gemini") {
		t.Fatalf("result: got=%+v", res)
	}
}

func TestRunMarkErrorFailureIsReturned(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{err: errBoom})
	h.store.markErr = errors.New("db down")
	id := h.store.add("photosynthesis")

	if _, err := h.orch.Run(context.Background(), id); err == nil || err.Error() != "db down" {
		t.Fatalf("Run: want db down got=%v", err)
	}
}

func TestRunCanceledLeavesLessonResumable(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.orch.Run(ctx, id); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: want context.Canceled got=%v", err)
	}
	got := h.store.get(id)
	if got.Status != lessons.StatusGenerating || got.LeaseToken != nil {
		t.Fatalf("record: want generating and unleased got=%s lease=%v", got.Status, got.LeaseToken)
	}
}

func TestRunLeaseHeld(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")
	h.store.holdLease(id)

	if _, err := h.orch.Run(context.Background(), id); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("Run: want ErrLeaseHeld got=%v", err)
	}
	if h.text.calls != 0 {
		t.Fatalf("text calls: want=0 got=%d", h.text.calls)
	}
}

func TestRunTerminalLessonIsSkipped(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")
	h.store.rows[id].Status = lessons.StatusGenerated

	res, err := h.orch.Run(context.Background(), id)
	if err != nil || !res.Skipped {
		t.Fatalf("Run: want skipped got=%+v err=%v", res, err)
	}
}

func TestAdvanceDiscreteSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VisualsPerStep = 1
	h := newHarness(cfg, textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")
	ctx := context.Background()

	want := []struct {
		step     Step
		progress int
	}{
		{StepGenerateContent, 10},
		{StepParseAndSaveContent, 30},
		{StepGenerateVisuals, 70},
		{StepGenerateVisuals, 90},
		{StepFinalize, 100},
	}
	for i, w := range want {
		res, err := h.orch.Advance(ctx, id, "")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if res.Step != w.step || res.Progress != w.progress {
			t.Fatalf("call %d: want %s/%d got %s/%d", i, w.step, w.progress, res.Step, res.Progress)
		}
	}
	res, err := h.orch.Advance(ctx, id, "")
	if err != nil || !res.Skipped || res.Status != lessons.StatusGenerated {
		t.Fatalf("after finalize: want skipped generated got=%+v err=%v", res, err)
	}
}

func TestAdvanceOrdering(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")
	ctx := context.Background()

	if _, err := h.orch.Advance(ctx, id, StepGenerateVisuals); !errors.Is(err, ErrStepOutOfOrder) {
		t.Fatalf("ahead: want ErrStepOutOfOrder got=%v", err)
	}
	if _, err := h.orch.Advance(ctx, id, Step("publish")); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("unknown: want ErrUnknownStep got=%v", err)
	}
	if _, err := h.orch.Advance(ctx, id, StepGenerateContent); err != nil {
		t.Fatalf("generateContent: %v", err)
	}
	if _, err := h.orch.Advance(ctx, id, StepParseAndSaveContent); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := h.orch.Advance(ctx, id, StepGenerateContent); !errors.Is(err, ErrStepAlreadyCompleted) {
		t.Fatalf("stale: want ErrStepAlreadyCompleted got=%v", err)
	}
}

func TestAdvanceRerunGenerateContentOverwritesRaw(t *testing.T) {
	h := newHarness(DefaultConfig(),
		textResponse{text: "first"},
		textResponse{text: scienceLesson},
	)
	id := h.store.add("photosynthesis")
	ctx := context.Background()

	if _, err := h.orch.Advance(ctx, id, StepGenerateContent); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := h.orch.Advance(ctx, id, StepGenerateContent)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	got := h.store.get(id)
	if got.RawContent != scienceLesson || got.Progress != 10 || res.NextStep != StepParseAndSaveContent {
		t.Fatalf("rerun: raw=%q progress=%d next=%s", got.RawContent[:5], got.Progress, res.NextStep)
	}
}

func TestAdvanceLeaseHeld(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")
	h.store.holdLease(id)

	if _, err := h.orch.Advance(context.Background(), id, ""); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("Advance: want ErrLeaseHeld got=%v", err)
	}
}

func TestAdvanceLeaseLostPersistsNothing(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	h.store.updateErr = repos.ErrLeaseLost
	h.store.failUpdateAt = 1
	id := h.store.add("photosynthesis")

	_, err := h.orch.Advance(context.Background(), id, "")
	if !errors.Is(err, repos.ErrLeaseLost) {
		t.Fatalf("Advance: want ErrLeaseLost got=%v", err)
	}
	got := h.store.get(id)
	if got.Status != lessons.StatusGenerating || got.ErrorMessage != "" {
		t.Fatalf("record: want untouched got status=%s err=%q", got.Status, got.ErrorMessage)
	}
}

func TestAdvanceSkipsStepFinishedByAnotherCaller(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")
	ctx := context.Background()

	if _, err := h.orch.Advance(ctx, id, ""); err != nil {
		t.Fatalf("generateContent: %v", err)
	}
	marker := datatypes.JSON(`{"marker":true}`)
	h.store.beforeAcquire = func(l *types.Lesson) {
		l.Progress = 50
		l.Stage = lessons.StageVisuals
		l.Content = marker
	}

	_, err := h.orch.Advance(ctx, id, "")
	if !errors.Is(err, ErrStepAlreadyCompleted) {
		t.Fatalf("Advance: want ErrStepAlreadyCompleted got=%v", err)
	}
	got := h.store.get(id)
	if string(got.Content) != string(marker) || got.Progress != 50 || got.Stage != lessons.StageVisuals {
		t.Fatalf("record rewritten: content=%s progress=%d stage=%s", got.Content, got.Progress, got.Stage)
	}
	if got.LeaseToken != nil {
		t.Fatalf("lease not released")
	}
	if len(h.visuals.calls) != 0 {
		t.Fatalf("visuals ran: %v", h.visuals.calls)
	}
}

// slowFirstModel stalls past the client deadline on its first call.
type slowFirstModel struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (m *slowFirstModel) GenerateText(ctx context.Context, _ string, _ string) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	if n == 1 {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return "late", nil
	}
	return m.text, nil
}

func TestAdvanceGeminiTimeoutThenSuccess(t *testing.T) {
	model := &slowFirstModel{text: scienceLesson}
	client := gemini.NewWithModel(logger.NewNop(), gemini.Config{
		Model:       "test-model",
		Timeout:     50 * time.Millisecond,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}, model)
	store := newMemStore()
	orch := NewOrchestrator(logger.NewNop(), DefaultConfig(), store, client, &stubVisuals{}, &recordingNotifier{})
	id := store.add("photosynthesis")

	res, err := orch.Advance(context.Background(), id, StepGenerateContent)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got := store.get(id)
	if got.RawContent != scienceLesson {
		t.Fatalf("raw: want second response got=%q", got.RawContent)
	}
	if got.ErrorMessage != "" || got.Status == lessons.StatusError || res.Status == lessons.StatusError {
		t.Fatalf("want no error got status=%s err=%q", got.Status, got.ErrorMessage)
	}
	model.mu.Lock()
	defer model.mu.Unlock()
	if model.calls != 2 {
		t.Fatalf("model calls: want=2 got=%d", model.calls)
	}
}

func TestAdvanceNotFound(t *testing.T) {
	h := newHarness(DefaultConfig(), textResponse{text: scienceLesson})
	if _, err := h.orch.Advance(context.Background(), uuid.New(), ""); err == nil {
		t.Fatalf("Advance: want not found")
	}
}

func TestVisualSectionLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VisualSectionLimit = 1
	h := newHarness(cfg, textResponse{text: scienceLesson})
	id := h.store.add("photosynthesis")

	if _, err := h.orch.Run(context.Background(), id); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.visuals.calls) != 1 || h.visuals.calls[0] != 1 {
		t.Fatalf("visual calls: want [1] got=%v", h.visuals.calls)
	}
	doc := decode(t, h.store.get(id))
	if doc.Content.Sections[1].GeneratedVisual != nil {
		t.Fatalf("section 2 beyond limit was attempted")
	}
}

func TestRunTimeoutMarksError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RunTimeout = 20 * time.Millisecond
	h := newHarness(cfg, textResponse{text: scienceLesson})
	h.orch.text = blockingText{}
	id := h.store.add("photosynthesis")

	res, err := h.orch.Run(context.Background(), id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != lessons.StatusError || !strings.Contains(res.Error, "timed out") {
		t.Fatalf("result: got=%+v", res)
	}
}

type blockingText struct{}

func (blockingText) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingText) ModelName() string { return "blocking" }
