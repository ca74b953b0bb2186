package repos

import (
	"github.com/yungbote/lessonforge-backend/internal/data/repos/lessons"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type LessonRepo = lessons.LessonRepo

var (
	ErrLeaseLost = lessons.ErrLeaseLost
)

type PersistenceError = lessons.PersistenceError

func TruncateErrorMessage(msg string) string { return lessons.TruncateErrorMessage(msg) }

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return lessons.NewLessonRepo(db, baseLog)
}
