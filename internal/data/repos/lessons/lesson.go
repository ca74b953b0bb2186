package lessons

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge-backend/internal/domain"
	domain "github.com/yungbote/lessonforge-backend/internal/domain/lessons"
	"github.com/yungbote/lessonforge-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lessonforge-backend/internal/pkg/errors"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

const (
	MaxErrorMessageChars = 1000
	truncatedSuffix      = "... (truncated)"
)

type LessonRepo interface {
	Create(dbc dbctx.Context, outline string) (*types.Lesson, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error)
	List(dbc dbctx.Context, limit, offset int) ([]*types.Lesson, error)
	ListStale(dbc dbctx.Context, olderThan time.Time, limit int) ([]*types.Lesson, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsWithLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID, ttl time.Duration, updates map[string]interface{}) error
	AcquireLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID) error
	MarkError(dbc dbctx.Context, id uuid.UUID, leaseToken uuid.UUID, message string) error
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{
		db:  db,
		log: baseLog.With("repo", "LessonRepo"),
	}
}

func (r *lessonRepo) Create(dbc dbctx.Context, outline string) (*types.Lesson, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	lesson := &types.Lesson{
		ID:       uuid.New(),
		Outline:  outline,
		Status:   domain.StatusGenerating,
		Stage:    domain.StageQueued,
		Progress: 0,
	}
	if err := transaction.WithContext(dbc.Ctx).Create(lesson).Error; err != nil {
		return nil, persistErr("create", err)
	}
	return lesson, nil
}

func (r *lessonRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	var lesson types.Lesson
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get", err)
	}
	return &lesson, nil
}

func (r *lessonRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.Lesson, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var out []*types.Lesson
	if err := transaction.WithContext(dbc.Ctx).
		Omit("raw_content").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, persistErr("list", err)
	}
	return out, nil
}

// ListStale returns generating lessons nobody holds a live lease on and that
// have not been touched since olderThan, oldest first.
func (r *lessonRepo) ListStale(dbc dbctx.Context, olderThan time.Time, limit int) ([]*types.Lesson, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 10
	}
	now := time.Now().UTC()
	var out []*types.Lesson
	if err := transaction.WithContext(dbc.Ctx).
		Omit("raw_content", "content").
		Where("status = ?", domain.StatusGenerating).
		Where("(lease_token IS NULL OR lease_expires_at IS NULL OR lease_expires_at < ?)", now).
		Where("updated_at < ?", olderThan.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, persistErr("list_stale", err)
	}
	return out, nil
}

// UpdateFields applies a partial update. Progress never moves backwards and
// terminal records are left untouched.
func (r *lessonRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Lesson{}).
		Where("id = ?", id).
		Where("status = ?", domain.StatusGenerating).
		Updates(prepareUpdates(updates)).Error
	return persistErr("update", err)
}

func (r *lessonRepo) UpdateFieldsWithLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID, ttl time.Duration, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || token == uuid.Nil {
		return ErrLeaseLost
	}
	u := prepareUpdates(updates)
	if ttl > 0 {
		u["lease_expires_at"] = time.Now().UTC().Add(ttl)
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Lesson{}).
		Where("id = ? AND lease_token = ?", id, token).
		Where("status = ?", domain.StatusGenerating).
		Updates(u)
	if res.Error != nil {
		return persistErr("update_fenced", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrLeaseLost
	}
	return nil
}

// AcquireLease claims the record for token when it is unleased, expired or
// already held by token. It does not touch updated_at.
func (r *lessonRepo) AcquireLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID, ttl time.Duration) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || token == uuid.Nil {
		return false, nil
	}
	now := time.Now().UTC()
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Lesson{}).
		Where("id = ?", id).
		Where("(lease_token IS NULL OR lease_expires_at IS NULL OR lease_expires_at < ? OR lease_token = ?)", now, token).
		UpdateColumns(map[string]interface{}{
			"lease_token":      token,
			"lease_expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, persistErr("acquire_lease", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *lessonRepo) ReleaseLease(dbc dbctx.Context, id uuid.UUID, token uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || token == uuid.Nil {
		return nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Lesson{}).
		Where("id = ? AND lease_token = ?", id, token).
		UpdateColumns(map[string]interface{}{
			"lease_token":      nil,
			"lease_expires_at": nil,
		}).Error
	return persistErr("release_lease", err)
}

// MarkError moves a generating record to the error status. When leaseToken is
// set the write is fenced on it. A schema without error_message still gets the
// status change.
func (r *lessonRepo) MarkError(dbc dbctx.Context, id uuid.UUID, leaseToken uuid.UUID, message string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	updates := map[string]interface{}{
		"status":        domain.StatusError,
		"stage":         domain.StageFailed,
		"error_message": TruncateErrorMessage(message),
		"updated_at":    time.Now().UTC(),
	}
	write := func(u map[string]interface{}) (int64, error) {
		q := transaction.WithContext(dbc.Ctx).
			Model(&types.Lesson{}).
			Where("id = ?", id).
			Where("status = ?", domain.StatusGenerating)
		if leaseToken != uuid.Nil {
			q = q.Where("lease_token = ?", leaseToken)
		}
		res := q.Updates(u)
		return res.RowsAffected, res.Error
	}

	rows, err := write(updates)
	if err != nil && isMissingColumn(err) {
		r.log.Warn("error_message column missing; marking status only", "lesson_id", id, "error", err)
		delete(updates, "error_message")
		rows, err = write(updates)
	}
	if err != nil {
		r.log.Error("failed to mark lesson as error", "lesson_id", id, "error", err)
		return persistErr("mark_error", err)
	}
	if rows == 0 && leaseToken != uuid.Nil {
		return ErrLeaseLost
	}
	return nil
}

func TruncateErrorMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorMessageChars {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorMessageChars]) + truncatedSuffix
}

func prepareUpdates(updates map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		out[k] = v
	}
	if p, ok := out["progress"]; ok {
		out["progress"] = gorm.Expr("CASE WHEN progress > ? THEN progress ELSE ? END", p, p)
	}
	if _, ok := out["updated_at"]; !ok {
		out["updated_at"] = time.Now().UTC()
	}
	return out
}
