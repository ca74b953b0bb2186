package lessonrun

import "github.com/google/uuid"

const (
	WorkflowName    = "lesson_run"
	ActivityAdvance = "lesson_run_advance"
)

func WorkflowID(lessonID uuid.UUID) string { return "lesson-" + lessonID.String() }

type AdvanceResult struct {
	LessonID  string `json:"lesson_id"`
	Step      string `json:"step,omitempty"`
	Status    string `json:"status"`
	Stage     string `json:"stage,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	LeaseHeld bool   `json:"lease_held,omitempty"`
}
