package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/lessonforge-backend/internal/data/repos"
	types "github.com/yungbote/lessonforge-backend/internal/domain"
	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/visuals"
	"github.com/yungbote/lessonforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonforge-backend/internal/pkg/errors"
)

// memStore mirrors the repo's guards: fenced writes, the progress clamp and
// terminal records being frozen.
type memStore struct {
	mu           sync.Mutex
	rows         map[uuid.UUID]*types.Lesson
	progressLog  []int
	markErr      error
	updateErr    error
	failUpdateAt int
	updates      int
	// beforeAcquire runs under the lock ahead of a lease grant, to simulate
	// another caller finishing a step in between.
	beforeAcquire func(l *types.Lesson)
}

func newMemStore() *memStore {
	return &memStore{rows: map[uuid.UUID]*types.Lesson{}}
}

func (s *memStore) add(outline string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.rows[id] = &types.Lesson{
		ID:       id,
		Outline:  outline,
		Status:   lessons.StatusGenerating,
		Stage:    lessons.StageQueued,
		Progress: 0,
	}
	return id
}

func (s *memStore) get(id uuid.UUID) types.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memStore) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) UpdateFieldsWithLease(_ dbctx.Context, id uuid.UUID, token uuid.UUID, ttl time.Duration, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil && s.updates >= s.failUpdateAt {
		return s.updateErr
	}
	l, ok := s.rows[id]
	if !ok || l.LeaseToken == nil || *l.LeaseToken != token || l.Status != lessons.StatusGenerating {
		return repos.ErrLeaseLost
	}
	for k, v := range updates {
		switch k {
		case "status":
			l.Status = v.(string)
		case "stage":
			l.Stage = v.(string)
		case "progress":
			if p := v.(int); p > l.Progress {
				l.Progress = p
			}
			s.progressLog = append(s.progressLog, l.Progress)
		case "raw_content":
			l.RawContent = v.(string)
		case "content":
			l.Content = v.(datatypes.JSON)
		case "diagram_asset":
			l.DiagramAsset = v.(string)
		}
	}
	exp := time.Now().Add(ttl)
	l.LeaseExpiresAt = &exp
	return nil
}

func (s *memStore) AcquireLease(_ dbctx.Context, id uuid.UUID, token uuid.UUID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	if s.beforeAcquire != nil {
		s.beforeAcquire(l)
		s.beforeAcquire = nil
	}
	now := time.Now()
	if l.LeaseToken != nil && *l.LeaseToken != token && l.LeaseExpiresAt != nil && l.LeaseExpiresAt.After(now) {
		return false, nil
	}
	tok := token
	exp := now.Add(ttl)
	l.LeaseToken = &tok
	l.LeaseExpiresAt = &exp
	return true, nil
}

func (s *memStore) ReleaseLease(_ dbctx.Context, id uuid.UUID, token uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.rows[id]; ok && l.LeaseToken != nil && *l.LeaseToken == token {
		l.LeaseToken = nil
		l.LeaseExpiresAt = nil
	}
	return nil
}

func (s *memStore) MarkError(_ dbctx.Context, id uuid.UUID, token uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	l, ok := s.rows[id]
	if !ok || l.Status != lessons.StatusGenerating {
		return nil
	}
	if token != uuid.Nil && (l.LeaseToken == nil || *l.LeaseToken != token) {
		return repos.ErrLeaseLost
	}
	l.Status = lessons.StatusError
	l.Stage = lessons.StageFailed
	l.ErrorMessage = repos.TruncateErrorMessage(message)
	return nil
}

// holdLease simulates another worker owning the record.
func (s *memStore) holdLease(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := uuid.New()
	exp := time.Now().Add(time.Hour)
	s.rows[id].LeaseToken = &tok
	s.rows[id].LeaseExpiresAt = &exp
}

type scriptedText struct {
	mu        sync.Mutex
	responses []textResponse
	calls     int
}

type textResponse struct {
	text string
	err  error
}

func (f *scriptedText) Generate(ctx context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := f.responses[i]
	return r.text, r.err
}

func (f *scriptedText) ModelName() string { return "gemini-test" }

type stubVisuals struct {
	mu     sync.Mutex
	calls  []int
	result func(index int) visuals.Result
}

func (f *stubVisuals) GenerateForSection(_ context.Context, _ string, index int, _ string, _ visuals.Kind) visuals.Result {
	f.mu.Lock()
	f.calls = append(f.calls, index)
	f.mu.Unlock()
	if f.result == nil {
		return visuals.Result{Asset: "data:image/jpeg;base64,AAAA", Source: visuals.SourceImage}
	}
	return f.result(index)
}

type recordingNotifier struct {
	mu       sync.Mutex
	progress []Snapshot
	failed   []Snapshot
	done     []Snapshot
}

func (n *recordingNotifier) LessonProgress(_ context.Context, s Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, s)
}

func (n *recordingNotifier) LessonFailed(_ context.Context, s Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, s)
}

func (n *recordingNotifier) LessonDone(_ context.Context, s Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = append(n.done, s)
}

var errBoom = errors.New("boom")

const scienceLesson = "Here is your lesson:\n```json\n" + `{
  "metadata": {"title": "Photosynthesis", "category": "Science", "difficulty": "Beginner", "estimatedTime": "15 minutes", "tags": ["plants"]},
  "content": {
    "introduction": "Plants make food.",
    "learningObjectives": ["Explain photosynthesis"],
    "sections": [
      {"id": 1, "title": "Light", "content": "Leaves catch light.", "visuals": {"description": "a leaf in sunlight", "type": "image"},
       "codeExample": {"language": "python", "code": "print('leaf')"}},
      {"id": 2, "title": "Water", "content": "Roots drink water.", "visuals": {"description": "roots in soil", "type": "diagram"}},
      {"id": 3, "title": "Sugar", "content": "Plants store sugar."}
    ]
  },
  "assessment": {"questions": [
    {"id": "q1", "question": "What do leaves catch?", "options": [{"id": "a", "text": "Light", "isCorrect": true}, {"id": "b", "text": "Rocks", "isCorrect": false}]},
    {"id": "q2", "question": "Broken?", "options": [{"id": "a", "text": "Yes", "isCorrect": true}, {"id": "b", "text": "Also yes", "isCorrect": true}]}
  ]}
}` + "\n```\nEnjoy!"
