package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/yungbote/lessonforge-backend/internal/data/repos"
	types "github.com/yungbote/lessonforge-backend/internal/domain"
	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/content"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/prompts"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/visuals"
	"github.com/yungbote/lessonforge-backend/internal/observability"
	"github.com/yungbote/lessonforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

const markErrorTimeout = 10 * time.Second

// Store is the slice of the lesson repo the orchestrator writes through.
type Store interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error)
	UpdateFieldsWithLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID, ttl time.Duration, updates map[string]interface{}) error
	AcquireLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID) error
	MarkError(dbc dbctx.Context, id uuid.UUID, leaseToken uuid.UUID, message string) error
}

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

type VisualGenerator interface {
	GenerateForSection(ctx context.Context, lessonID string, index int, description string, kind visuals.Kind) visuals.Result
}

// Snapshot is what notifiers see after each checkpoint.
type Snapshot struct {
	LessonID     uuid.UUID
	Status       string
	Stage        string
	Progress     int
	ErrorMessage string
}

type Notifier interface {
	LessonProgress(ctx context.Context, s Snapshot)
	LessonFailed(ctx context.Context, s Snapshot)
	LessonDone(ctx context.Context, s Snapshot)
}

type StepResult struct {
	LessonID uuid.UUID `json:"lessonId"`
	Step     Step      `json:"step,omitempty"`
	NextStep Step      `json:"nextStep,omitempty"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage"`
	Progress int       `json:"progress"`
	Skipped  bool      `json:"skipped,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type Orchestrator struct {
	log      *logger.Logger
	cfg      Config
	store    Store
	text     TextGenerator
	visuals  VisualGenerator
	notifier Notifier
	now      func() time.Time
}

func NewOrchestrator(log *logger.Logger, cfg Config, store Store, text TextGenerator, vis VisualGenerator, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		log:      log.With("service", "LessonOrchestrator"),
		cfg:      cfg.withDefaults(),
		store:    store,
		text:     text,
		visuals:  vis,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run drives a lesson to a terminal status under a single lease.
func (o *Orchestrator) Run(ctx context.Context, lessonID uuid.UUID) (StepResult, error) {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	token := uuid.New()
	lesson, err := o.claim(ctx, lessonID, token)
	if err != nil || lesson.Terminal() {
		return resultFor(lesson, "", err == nil), err
	}
	defer o.release(lessonID, token)

	var res StepResult
	for !lesson.Terminal() {
		step := NextStep(lesson.Progress)
		res, err = o.execute(ctx, lesson, token, step, 0)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
				return o.fail(ctx, lesson, token, step, fmt.Errorf("lesson generation timed out after %s", o.cfg.RunTimeout))
			}
			return res, err
		}
	}
	return res, nil
}

// Advance executes exactly one step. An empty step means the next expected one.
func (o *Orchestrator) Advance(ctx context.Context, lessonID uuid.UUID, step Step) (StepResult, error) {
	if step != "" && stepIndex(step) < 0 {
		return StepResult{LessonID: lessonID}, ErrUnknownStep
	}
	lesson, err := o.store.GetByID(dbctx.New(ctx), lessonID)
	if err != nil {
		return StepResult{LessonID: lessonID}, err
	}
	if lesson.Terminal() {
		return resultFor(lesson, step, true), nil
	}
	expected := NextStep(lesson.Progress)
	if step == "" {
		step = expected
	}
	if err := checkOrder(step, expected); err != nil {
		return resultFor(lesson, step, false), err
	}

	token := uuid.New()
	lesson, err = o.claim(ctx, lessonID, token)
	if err != nil || lesson.Terminal() {
		return resultFor(lesson, step, err == nil), err
	}
	defer o.release(lessonID, token)
	if err := recheckOrder(step, expected, NextStep(lesson.Progress)); err != nil {
		return resultFor(lesson, step, false), err
	}
	return o.execute(ctx, lesson, token, step, o.cfg.VisualsPerStep)
}

// claim takes the lease and re-reads the record it now guards. The lease is
// dropped again when the record turns out to be terminal.
func (o *Orchestrator) claim(ctx context.Context, lessonID, token uuid.UUID) (*types.Lesson, error) {
	dbc := dbctx.New(ctx)
	ok, err := o.store.AcquireLease(dbc, lessonID, token, o.cfg.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, gerr := o.store.GetByID(dbc, lessonID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrLeaseHeld
	}
	lesson, err := o.store.GetByID(dbc, lessonID)
	if err != nil || lesson.Terminal() {
		o.release(lessonID, token)
	}
	return lesson, err
}

func (o *Orchestrator) release(lessonID, token uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), markErrorTimeout)
	defer cancel()
	if err := o.store.ReleaseLease(dbctx.New(ctx), lessonID, token); err != nil {
		o.log.Warn("failed to release lesson lease", "lesson_id", lessonID, "error", err)
	}
}

func (o *Orchestrator) execute(ctx context.Context, lesson *types.Lesson, token uuid.UUID, step Step, visualBudget int) (StepResult, error) {
	start := time.Now()
	ctx, span := observability.StartLessonSpan(ctx, "lessongen.step."+string(step), lesson.ID.String(),
		attribute.Int("lesson.progress", lesson.Progress),
	)
	defer span.End()
	log := o.log.With("lesson_id", lesson.ID, "step", step)
	log.Debug("executing step", "progress", lesson.Progress)

	var err error
	switch step {
	case StepGenerateContent:
		err = o.generateContent(ctx, lesson, token)
	case StepParseAndSaveContent:
		err = o.parseAndSaveContent(ctx, log, lesson, token)
	case StepGenerateVisuals:
		err = o.generateVisuals(ctx, log, lesson, token, visualBudget)
	case StepFinalize:
		err = o.finalize(ctx, lesson, token)
	default:
		err = ErrUnknownStep
	}

	if err == nil {
		observability.Current().ObserveStep(string(step), "ok", time.Since(start))
		return resultFor(lesson, step, false), nil
	}
	observability.FailSpan(span, err)

	switch {
	case errors.Is(err, repos.ErrLeaseLost):
		observability.Current().ObserveStep(string(step), "lease_lost", time.Since(start))
		log.Warn("lease lost during step", "error", err)
		return resultFor(lesson, step, false), err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		observability.Current().ObserveStep(string(step), "canceled", time.Since(start))
		log.Warn("step interrupted; lesson left resumable", "error", err)
		return resultFor(lesson, step, false), err
	}
	observability.Current().ObserveStep(string(step), "error", time.Since(start))
	return o.fail(ctx, lesson, token, step, err)
}

// fail persists a fatal step error. The caller gets an error result, not an
// error, unless the error itself could not be persisted.
func (o *Orchestrator) fail(ctx context.Context, lesson *types.Lesson, token uuid.UUID, step Step, stepErr error) (StepResult, error) {
	msg := stepErr.Error()
	o.log.Error("lesson step failed", "lesson_id", lesson.ID, "step", step, "error", msg)

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markErrorTimeout)
	defer cancel()
	if err := o.store.MarkError(dbctx.New(mctx), lesson.ID, token, msg); err != nil {
		o.log.Error("failed to persist lesson error", "lesson_id", lesson.ID, "error", err)
		return resultFor(lesson, step, false), err
	}
	lesson.Status = lessons.StatusError
	lesson.Stage = lessons.StageFailed
	lesson.ErrorMessage = repos.TruncateErrorMessage(msg)
	if o.notifier != nil {
		o.notifier.LessonFailed(mctx, snapshotOf(lesson))
	}
	return resultFor(lesson, step, false), nil
}

// persist is the fenced checkpoint write followed by a progress event.
func (o *Orchestrator) persist(ctx context.Context, lesson *types.Lesson, token uuid.UUID, updates map[string]interface{}) error {
	if err := o.store.UpdateFieldsWithLease(dbctx.New(ctx), lesson.ID, token, o.cfg.LeaseTTL, updates); err != nil {
		return err
	}
	apply(lesson, updates)
	if o.notifier == nil {
		return nil
	}
	if lesson.Status == lessons.StatusGenerated {
		o.notifier.LessonDone(ctx, snapshotOf(lesson))
	} else {
		o.notifier.LessonProgress(ctx, snapshotOf(lesson))
	}
	return nil
}

func (o *Orchestrator) generateContent(ctx context.Context, lesson *types.Lesson, token uuid.UUID) error {
	prompt := prompts.BuildLessonPrompt(lesson.Outline, o.now())
	done := timeModelCall(ctx, o.log, "lesson_content", lesson.ID, len(prompt))
	raw, err := o.text.Generate(ctx, prompt)
	done(err, len(raw))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	return o.persist(ctx, lesson, token, map[string]interface{}{
		"raw_content": raw,
		"progress":    ProgressContentGenerated,
		"stage":       lessons.StageContentGenerated,
	})
}

func (o *Orchestrator) parseAndSaveContent(ctx context.Context, log *logger.Logger, lesson *types.Lesson, token uuid.UUID) error {
	doc, err := content.Parse(lesson.RawContent, content.Options{Model: o.text.ModelName(), Now: o.now})
	if err != nil {
		return err
	}
	rep := content.PostProcess(doc, o.cfg.Keywords)
	if rep.CodeExamplesRemoved > 0 || rep.QuestionsRemoved > 0 {
		log.Info("lesson content post-processed",
			"code_examples_removed", rep.CodeExamplesRemoved,
			"questions_removed", rep.QuestionsRemoved,
		)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode lesson content: %w", err)
	}
	return o.persist(ctx, lesson, token, map[string]interface{}{
		"content":  datatypes.JSON(b),
		"progress": ProgressContentParsed,
		"stage":    lessons.StageContentParsed,
	})
}

func (o *Orchestrator) generateVisuals(ctx context.Context, log *logger.Logger, lesson *types.Lesson, token uuid.UUID, budget int) error {
	doc, err := decodeDocument(lesson)
	if err != nil {
		return err
	}
	eligible := eligibleSections(doc, o.cfg.VisualSectionLimit)
	total := len(eligible)
	done := 0
	for _, i := range eligible {
		if doc.Content.Sections[i].GeneratedVisual != nil {
			done++
		}
	}
	if done == total {
		return o.persist(ctx, lesson, token, map[string]interface{}{
			"progress":      ProgressVisualsDone,
			"stage":         lessons.StageVisuals,
			"diagram_asset": firstVisual(doc),
		})
	}

	attempted := 0
	for _, i := range eligible {
		sec := &doc.Content.Sections[i]
		if sec.GeneratedVisual != nil {
			continue
		}
		if budget > 0 && attempted >= budget {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		res := o.visuals.GenerateForSection(ctx, lesson.ID.String(), i+1, sec.Visuals.Description, visuals.ParseKind(sec.Visuals.Type))
		asset := res.Asset
		sec.GeneratedVisual = &asset
		attempted++
		done++
		log.Debug("section visual attempted", "section", i+1, "source", res.Source, "model", res.Model)

		b, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode lesson content: %w", err)
		}
		if err := o.persist(ctx, lesson, token, map[string]interface{}{
			"content":       datatypes.JSON(b),
			"diagram_asset": firstVisual(doc),
			"progress":      visualProgress(done, total),
			"stage":         lessons.StageVisuals,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, lesson *types.Lesson, token uuid.UUID) error {
	doc, err := decodeDocument(lesson)
	if err != nil {
		return err
	}
	return o.persist(ctx, lesson, token, map[string]interface{}{
		"status":        lessons.StatusGenerated,
		"stage":         lessons.StageCompleted,
		"progress":      ProgressCompleted,
		"diagram_asset": firstVisual(doc),
	})
}

func decodeDocument(lesson *types.Lesson) (*types.Document, error) {
	if len(lesson.Content) == 0 {
		return nil, errors.New("lesson has no parsed content")
	}
	var doc types.Document
	if err := json.Unmarshal(lesson.Content, &doc); err != nil {
		return nil, fmt.Errorf("decode lesson content: %w", err)
	}
	return &doc, nil
}

func eligibleSections(doc *types.Document, limit int) []int {
	sections := doc.Content.Sections
	if limit > 0 && limit < len(sections) {
		sections = sections[:limit]
	}
	out := make([]int, 0, len(sections))
	for i, s := range sections {
		if s.Visuals != nil && s.Visuals.Description != "" {
			out = append(out, i)
		}
	}
	return out
}

func firstVisual(doc *types.Document) string {
	for _, s := range doc.Content.Sections {
		if s.GeneratedVisual != nil && *s.GeneratedVisual != "" {
			return *s.GeneratedVisual
		}
	}
	return ""
}

// apply mirrors a successful write onto the in-memory record.
func apply(lesson *types.Lesson, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			lesson.Status = v.(string)
		case "stage":
			lesson.Stage = v.(string)
		case "progress":
			if p := v.(int); p > lesson.Progress {
				lesson.Progress = p
			}
		case "raw_content":
			lesson.RawContent = v.(string)
		case "content":
			lesson.Content = v.(datatypes.JSON)
		case "diagram_asset":
			lesson.DiagramAsset = v.(string)
		}
	}
}

func snapshotOf(l *types.Lesson) Snapshot {
	return Snapshot{
		LessonID:     l.ID,
		Status:       l.Status,
		Stage:        l.Stage,
		Progress:     l.Progress,
		ErrorMessage: l.ErrorMessage,
	}
}

func resultFor(l *types.Lesson, step Step, skipped bool) StepResult {
	if l == nil {
		return StepResult{Step: step}
	}
	res := StepResult{
		LessonID: l.ID,
		Step:     step,
		Status:   l.Status,
		Stage:    l.Stage,
		Progress: l.Progress,
		Skipped:  skipped,
		Error:    l.ErrorMessage,
	}
	if !l.Terminal() {
		res.NextStep = NextStep(l.Progress)
	}
	return res
}
