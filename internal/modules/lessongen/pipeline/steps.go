package pipeline

import (
	"errors"
	"strings"
)

type Step string

const (
	StepGenerateContent     Step = "generateContent"
	StepParseAndSaveContent Step = "parseAndSaveContent"
	StepGenerateVisuals     Step = "generateVisuals"
	StepFinalize            Step = "finalize"
)

var Steps = []Step{StepGenerateContent, StepParseAndSaveContent, StepGenerateVisuals, StepFinalize}

// Progress checkpoints written by each step.
const (
	ProgressContentGenerated = 10
	ProgressContentParsed    = 30
	ProgressVisualsStart     = 50
	ProgressVisualsDone      = 90
	ProgressCompleted        = 100
)

var (
	ErrStepOutOfOrder       = errors.New("step is ahead of the lesson's progress")
	ErrStepAlreadyCompleted = errors.New("step already completed")
	ErrLeaseHeld            = errors.New("lesson is being processed by another worker")
	ErrUnknownStep          = errors.New("unknown step")
)

// NextStep maps persisted progress to the step that should run next.
func NextStep(progress int) Step {
	switch {
	case progress < ProgressContentGenerated:
		return StepGenerateContent
	case progress < ProgressContentParsed:
		return StepParseAndSaveContent
	case progress < ProgressVisualsDone:
		return StepGenerateVisuals
	default:
		return StepFinalize
	}
}

// ParseStep accepts the canonical names case-insensitively. An empty string
// yields "" and no error.
func ParseStep(s string) (Step, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, st := range Steps {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", ErrUnknownStep
}

func stepIndex(s Step) int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

// checkOrder allows the expected step and a re-run of the one before it.
func checkOrder(requested, expected Step) error {
	ri, ei := stepIndex(requested), stepIndex(expected)
	if ri < 0 {
		return ErrUnknownStep
	}
	switch {
	case ri > ei:
		return ErrStepOutOfOrder
	case ri < ei-1:
		return ErrStepAlreadyCompleted
	default:
		return nil
	}
}

// recheckOrder validates requested against the record read under the lease.
// When another caller advanced the lesson after the caller's first read, a
// step behind the new expected one was already done by that caller and must
// not run again.
func recheckOrder(requested, seen, current Step) error {
	if current == seen {
		return nil
	}
	if stepIndex(requested) < stepIndex(current) {
		return ErrStepAlreadyCompleted
	}
	return checkOrder(requested, current)
}

// visualProgress spreads the visuals step over 50..90. It reaches 90 only
// once every eligible section has been attempted.
func visualProgress(done, total int) int {
	if total <= 0 || done >= total {
		return ProgressVisualsDone
	}
	if done < 0 {
		done = 0
	}
	return ProgressVisualsStart + (ProgressVisualsDone-ProgressVisualsStart)*done/total
}
