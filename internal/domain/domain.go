package domain

import "github.com/yungbote/lessonforge-backend/internal/domain/lessons"

type (
	Lesson      = lessons.Lesson
	Document    = lessons.Document
	Section     = lessons.Section
	Question    = lessons.Question
	Assessment  = lessons.Assessment
	Certificate = lessons.Certificate
)

const (
	LessonStatusGenerating = lessons.StatusGenerating
	LessonStatusGenerated  = lessons.StatusGenerated
	LessonStatusError      = lessons.StatusError
)
