package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge-backend/internal/clients/gemini"
	"github.com/yungbote/lessonforge-backend/internal/data/repos"
	types "github.com/yungbote/lessonforge-backend/internal/domain"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/lessonforge-backend/internal/pkg/errors"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

const (
	minOutlineRunes  = 3
	maxOutlineRunes  = 500
	defaultListLimit = 20
	maxListLimit     = 100
)

var ErrInvalidOutline = fmt.Errorf("%w: outline must be between %d and %d characters", apperr.ErrInvalidArgument, minOutlineRunes, maxOutlineRunes)

var ErrInvalidLessonID = fmt.Errorf("%w: invalid lesson id", apperr.ErrInvalidArgument)

type LessonStatus struct {
	ID           uuid.UUID     `json:"id"`
	Status       string        `json:"status"`
	Stage        string        `json:"stage"`
	Progress     int           `json:"progress"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	NextStep     pipeline.Step `json:"nextStep,omitempty"`
}

type LessonService interface {
	Create(ctx context.Context, outline string) (*types.Lesson, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Lesson, error)
	List(ctx context.Context, limit, offset int) ([]*types.Lesson, error)
	Status(ctx context.Context, id uuid.UUID) (*LessonStatus, error)
	AdvanceStep(ctx context.Context, id uuid.UUID, step string) (pipeline.StepResult, error)
	Run(ctx context.Context, id uuid.UUID) (*LessonStatus, error)
	ProcessQueue(ctx context.Context, lessonID string, step string) (pipeline.StepResult, error)
	Driver() string
}

type StepAdvancer interface {
	Advance(ctx context.Context, lessonID uuid.UUID, step pipeline.Step) (pipeline.StepResult, error)
}

type TextAvailability interface {
	Configured() bool
}

type lessonService struct {
	log        *logger.Logger
	repo       repos.LessonRepo
	text       TextAvailability
	steps      StepAdvancer
	dispatcher Dispatcher
	notify     LessonNotifier
}

func NewLessonService(baseLog *logger.Logger, repo repos.LessonRepo, text TextAvailability, steps StepAdvancer, dispatcher Dispatcher, notify LessonNotifier) LessonService {
	if dispatcher == nil {
		dispatcher = ClientDispatcher{}
	}
	return &lessonService{
		log:        baseLog.With("service", "LessonService"),
		repo:       repo,
		text:       text,
		steps:      steps,
		dispatcher: dispatcher,
		notify:     notify,
	}
}

func (s *lessonService) Driver() string { return s.dispatcher.Driver() }

// Create validates the outline and the text credential before inserting, so a
// misconfigured deployment never leaves orphaned generating records.
func (s *lessonService) Create(ctx context.Context, outline string) (*types.Lesson, error) {
	outline = strings.TrimSpace(outline)
	if n := utf8.RuneCountInString(outline); n < minOutlineRunes || n > maxOutlineRunes {
		return nil, ErrInvalidOutline
	}
	if s.text == nil || !s.text.Configured() {
		return nil, gemini.ErrMissingCredential
	}
	lesson, err := s.repo.Create(dbctx.New(ctx), outline)
	if err != nil {
		return nil, fmt.Errorf("create lesson: %w", err)
	}
	s.log.Info("Lesson created", "lesson_id", lesson.ID, "driver", s.dispatcher.Driver())
	if s.notify != nil {
		s.notify.LessonCreated(ctx, lesson)
	}
	if err := s.dispatcher.Dispatch(ctx, lesson.ID); err != nil {
		// The record stays generating; the sweeper or POST /run can pick it up.
		s.log.Error("Failed to dispatch lesson", "lesson_id", lesson.ID, "driver", s.dispatcher.Driver(), "error", err)
	}
	return lesson, nil
}

func (s *lessonService) Get(ctx context.Context, id uuid.UUID) (*types.Lesson, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidLessonID
	}
	return s.repo.GetByID(dbctx.New(ctx), id)
}

func (s *lessonService) List(ctx context.Context, limit, offset int) ([]*types.Lesson, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(dbctx.New(ctx), limit, offset)
}

func (s *lessonService) Status(ctx context.Context, id uuid.UUID) (*LessonStatus, error) {
	lesson, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return statusOf(lesson), nil
}

func (s *lessonService) AdvanceStep(ctx context.Context, id uuid.UUID, step string) (pipeline.StepResult, error) {
	if id == uuid.Nil {
		return pipeline.StepResult{}, ErrInvalidLessonID
	}
	parsed, err := pipeline.ParseStep(step)
	if err != nil {
		return pipeline.StepResult{}, err
	}
	return s.steps.Advance(ctx, id, parsed)
}

// Run re-dispatches a lesson that is still generating. Terminal lessons are
// returned as they are.
func (s *lessonService) Run(ctx context.Context, id uuid.UUID) (*LessonStatus, error) {
	lesson, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lesson.Terminal() {
		return statusOf(lesson), nil
	}
	if err := s.dispatcher.Dispatch(ctx, lesson.ID); err != nil {
		return nil, fmt.Errorf("%w: dispatch lesson: %v", apperr.ErrUnavailable, err)
	}
	return statusOf(lesson), nil
}

func (s *lessonService) ProcessQueue(ctx context.Context, lessonID string, step string) (pipeline.StepResult, error) {
	id, err := uuid.Parse(strings.TrimSpace(lessonID))
	if err != nil {
		return pipeline.StepResult{}, ErrInvalidLessonID
	}
	return s.AdvanceStep(ctx, id, step)
}

func statusOf(l *types.Lesson) *LessonStatus {
	st := &LessonStatus{
		ID:           l.ID,
		Status:       l.Status,
		Stage:        l.Stage,
		Progress:     l.Progress,
		ErrorMessage: l.ErrorMessage,
	}
	if !l.Terminal() {
		st.NextStep = pipeline.NextStep(l.Progress)
	}
	return st
}

// IsConflict reports errors that the HTTP layer maps to 409.
func IsConflict(err error) bool {
	return errors.Is(err, pipeline.ErrLeaseHeld) ||
		errors.Is(err, repos.ErrLeaseLost) ||
		errors.Is(err, pipeline.ErrStepOutOfOrder) ||
		errors.Is(err, pipeline.ErrStepAlreadyCompleted)
}
