package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge-backend/internal/clients/gemini"
	"github.com/yungbote/lessonforge-backend/internal/data/db"
	"github.com/yungbote/lessonforge-backend/internal/data/repos"
	"github.com/yungbote/lessonforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/lessonforge-backend/internal/pkg/errors"
	"github.com/yungbote/lessonforge-backend/internal/realtime"
)

type textFlag bool

func (t textFlag) Configured() bool { return bool(t) }

type recordingDispatcher struct {
	mu    sync.Mutex
	ids   []uuid.UUID
	err   error
	label string
}

func (d *recordingDispatcher) Driver() string {
	if d.label == "" {
		return "test"
	}
	return d.label
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return d.err
}

func (d *recordingDispatcher) dispatched() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.ids...)
}

type stubAdvancer struct {
	calls []pipeline.Step
	res   pipeline.StepResult
	err   error
}

func (a *stubAdvancer) Advance(_ context.Context, id uuid.UUID, step pipeline.Step) (pipeline.StepResult, error) {
	a.calls = append(a.calls, step)
	res := a.res
	res.LessonID = id
	return res, a.err
}

type captureEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *captureEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

type fixture struct {
	svc      LessonService
	repo     repos.LessonRepo
	dispatch *recordingDispatcher
	steps    *stubAdvancer
	emit     *captureEmitter
}

func newFixture(t *testing.T, configured bool) *fixture {
	t.Helper()
	gdb := testutil.BareSQLite(t)
	require.NoError(t, db.AutoMigrateAll(gdb))
	log := testutil.Logger(t)
	f := &fixture{
		repo:     repos.NewLessonRepo(gdb, log),
		dispatch: &recordingDispatcher{},
		steps:    &stubAdvancer{},
		emit:     &captureEmitter{},
	}
	f.svc = NewLessonService(log, f.repo, textFlag(configured), f.steps, f.dispatch, NewLessonNotifier(f.emit))
	return f
}

func TestCreateRejectsOutlineLength(t *testing.T) {
	f := newFixture(t, true)
	for _, outline := range []string{"", "  ab  ", strings.Repeat("a", 501)} {
		_, err := f.svc.Create(context.Background(), outline)
		require.ErrorIs(t, err, ErrInvalidOutline)
		require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	}
	list, err := f.svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.dispatch.dispatched())
}

func TestCreateCountsRunesNotBytes(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Create(context.Background(), "光合作")
	require.NoError(t, err)
}

func TestCreateRequiresTextCredential(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Create(context.Background(), "Photosynthesis for kids")
	require.ErrorIs(t, err, gemini.ErrMissingCredential)

	list, err := f.svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "no record may be inserted without a credential")
}

func TestCreateInsertsNotifiesAndDispatches(t *testing.T) {
	f := newFixture(t, true)
	lesson, err := f.svc.Create(context.Background(), "  Photosynthesis for kids  ")
	require.NoError(t, err)

	assert.Equal(t, "Photosynthesis for kids", lesson.Outline)
	assert.Equal(t, lessons.StatusGenerating, lesson.Status)
	assert.Equal(t, 0, lesson.Progress)
	assert.Equal(t, []uuid.UUID{lesson.ID}, f.dispatch.dispatched())

	require.Len(t, f.emit.msgs, 1)
	msg := f.emit.msgs[0]
	assert.Equal(t, realtime.LessonChannel(lesson.ID), msg.Channel)
	assert.Equal(t, realtime.SSEEventLessonCreated, msg.Event)
}

func TestCreateSurvivesDispatchFailure(t *testing.T) {
	f := newFixture(t, true)
	f.dispatch.err = errors.New("temporal down")
	lesson, err := f.svc.Create(context.Background(), "Volcanoes")
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, lessons.StatusGenerating, got.Status)
}

func TestGetNotFoundAndNilID(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Get(context.Background(), uuid.Nil)
	require.ErrorIs(t, err, ErrInvalidLessonID)
}

func TestListClampsLimit(t *testing.T) {
	f := newFixture(t, true)
	for _, o := range []string{"one", "two", "three"} {
		_, err := f.svc.Create(context.Background(), o)
		require.NoError(t, err)
	}
	list, err := f.svc.List(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.svc.List(context.Background(), 1000, -5)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestStatusIncludesNextStepUntilTerminal(t *testing.T) {
	f := newFixture(t, true)
	lesson, err := f.svc.Create(context.Background(), "Rainbows")
	require.NoError(t, err)

	st, err := f.svc.Status(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StepGenerateContent, st.NextStep)

	require.NoError(t, f.repo.UpdateFields(dbctxFor(), lesson.ID, map[string]interface{}{
		"status": lessons.StatusGenerated, "stage": lessons.StageCompleted, "progress": 100,
	}))
	st, err = f.svc.Status(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, lessons.StatusGenerated, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.Empty(t, st.NextStep)
}

func TestAdvanceStepParsesAndForwards(t *testing.T) {
	f := newFixture(t, true)
	id := uuid.New()

	_, err := f.svc.AdvanceStep(context.Background(), id, "teleport")
	require.ErrorIs(t, err, pipeline.ErrUnknownStep)
	assert.Empty(t, f.steps.calls)

	f.steps.res = pipeline.StepResult{Progress: 10}
	res, err := f.svc.AdvanceStep(context.Background(), id, "GenerateContent")
	require.NoError(t, err)
	assert.Equal(t, id, res.LessonID)
	assert.Equal(t, []pipeline.Step{pipeline.StepGenerateContent}, f.steps.calls)

	_, err = f.svc.AdvanceStep(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.Step(""), f.steps.calls[1])
}

func TestProcessQueueValidatesLessonID(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.ProcessQueue(context.Background(), "not-a-uuid", "")
	require.ErrorIs(t, err, ErrInvalidLessonID)

	id := uuid.New()
	res, err := f.svc.ProcessQueue(context.Background(), id.String(), "parseAndSaveContent")
	require.NoError(t, err)
	assert.Equal(t, id, res.LessonID)
	assert.Equal(t, []pipeline.Step{pipeline.StepParseAndSaveContent}, f.steps.calls)
}

func TestRunRedispatchesOnlyGeneratingLessons(t *testing.T) {
	f := newFixture(t, true)
	lesson, err := f.svc.Create(context.Background(), "Tides")
	require.NoError(t, err)

	_, err = f.svc.Run(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Len(t, f.dispatch.dispatched(), 2)

	require.NoError(t, f.repo.MarkError(dbctxFor(), lesson.ID, uuid.Nil, "boom"))
	st, err := f.svc.Run(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, lessons.StatusError, st.Status)
	assert.Len(t, f.dispatch.dispatched(), 2)
}

func TestRunDispatchFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, true)
	lesson, err := f.svc.Create(context.Background(), "Tides")
	require.NoError(t, err)
	f.dispatch.err = errors.New("no worker")

	_, err = f.svc.Run(context.Background(), lesson.ID)
	require.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(pipeline.ErrLeaseHeld))
	assert.True(t, IsConflict(repos.ErrLeaseLost))
	assert.True(t, IsConflict(pipeline.ErrStepOutOfOrder))
	assert.True(t, IsConflict(pipeline.ErrStepAlreadyCompleted))
	assert.False(t, IsConflict(pipeline.ErrUnknownStep))
	assert.False(t, IsConflict(apperr.ErrNotFound))
}

func dbctxFor() dbctx.Context { return dbctx.New(context.Background()) }
