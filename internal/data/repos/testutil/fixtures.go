package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge-backend/internal/domain"
	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
	"github.com/yungbote/lessonforge-backend/internal/pkg/pointers"
)

func SeedLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, outline string) *types.Lesson {
	tb.Helper()
	l := &types.Lesson{
		ID:        uuid.New(),
		Outline:   outline,
		Status:    lessons.StatusGenerating,
		Stage:     lessons.StageQueued,
		Progress:  0,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed lesson: %v", err)
	}
	return l
}

// SeedGeneratedLesson inserts a finished lesson with the given document.
func SeedGeneratedLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, outline string, doc []byte) *types.Lesson {
	tb.Helper()
	l := &types.Lesson{
		ID:        uuid.New(),
		Outline:   outline,
		Status:    lessons.StatusGenerated,
		Stage:     lessons.StageCompleted,
		Progress:  100,
		Content:   datatypes.JSON(doc),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed generated lesson: %v", err)
	}
	return l
}

// SeedStaleLesson inserts a generating lesson last touched at updatedAt.
func SeedStaleLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, outline string, progress int, updatedAt time.Time) *types.Lesson {
	tb.Helper()
	l := SeedLesson(tb, ctx, tx, outline)
	if err := tx.WithContext(ctx).
		Model(&types.Lesson{}).
		Where("id = ?", l.ID).
		UpdateColumns(map[string]interface{}{"progress": progress, "updated_at": updatedAt.UTC()}).Error; err != nil {
		tb.Fatalf("age lesson: %v", err)
	}
	l.Progress = progress
	l.UpdatedAt = updatedAt.UTC()
	return l
}

// SeedLeasedLesson is SeedStaleLesson with a lease held until leaseUntil.
func SeedLeasedLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, outline string, updatedAt, leaseUntil time.Time) *types.Lesson {
	tb.Helper()
	l := SeedStaleLesson(tb, ctx, tx, outline, 0, updatedAt)
	l.LeaseToken = pointers.Ptr(uuid.New())
	l.LeaseExpiresAt = pointers.Ptr(leaseUntil.UTC())
	if err := tx.WithContext(ctx).
		Model(&types.Lesson{}).
		Where("id = ?", l.ID).
		UpdateColumns(map[string]interface{}{"lease_token": *l.LeaseToken, "lease_expires_at": *l.LeaseExpiresAt}).Error; err != nil {
		tb.Fatalf("lease lesson: %v", err)
	}
	return l
}
