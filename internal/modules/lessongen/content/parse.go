package content

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
)

const (
	DefaultDifficulty    = "beginner"
	DefaultEstimatedTime = 10
	DefaultAuthor        = "AI Instructor"
	DefaultPassingScore  = 70
	unknownGenerator     = "Unknown"
)

type Options struct {
	// Model is stamped into metadata.generatedBy when the output has none.
	Model string
	Now   func() time.Time
}

// Parse cleans, validates and normalizes raw model output.
func Parse(raw string, opts Options) (*lessons.Document, error) {
	cleaned := CleanJSONString(raw)

	var generic map[string]any
	if err := json.Unmarshal([]byte(cleaned), &generic); err != nil {
		return nil, invalid(err.Error(), cleaned, err)
	}
	if reason := validate(generic); reason != "" {
		return nil, invalid("Generated content "+reason, cleaned, nil)
	}

	var doc lessons.Document
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, invalid(err.Error(), cleaned, err)
	}
	normalize(&doc, opts)
	return &doc, nil
}

// validate returns the first structural problem, or "".
func validate(doc map[string]any) string {
	metadata, _ := doc["metadata"].(map[string]any)
	if !truthy(metadata["title"]) {
		return "missing required metadata.title"
	}
	body, _ := doc["content"].(map[string]any)
	if !truthy(body["introduction"]) {
		return "missing required content.introduction"
	}
	if _, ok := body["learningObjectives"].([]any); !ok {
		return "missing required content.learningObjectives array"
	}
	sections, ok := body["sections"].([]any)
	if !ok {
		return "missing required content.sections array"
	}
	if len(sections) == 0 {
		return "has no sections"
	}
	for _, s := range sections {
		section, _ := s.(map[string]any)
		if !truthy(section["title"]) || !truthy(section["content"]) {
			return "has sections with missing title or content"
		}
		rawSubs, present := section["subsections"]
		if !present || rawSubs == nil {
			continue
		}
		subs, ok := rawSubs.([]any)
		if !ok {
			return "has invalid subsections format"
		}
		for _, ss := range subs {
			sub, _ := ss.(map[string]any)
			if !truthy(sub["title"]) || !truthy(sub["content"]) {
				return "has subsections with missing title or content"
			}
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case float64:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}

func normalize(doc *lessons.Document, opts Options) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	md := &doc.Metadata
	md.Difficulty = strings.ToLower(strings.TrimSpace(md.Difficulty))
	if md.Difficulty == "" {
		md.Difficulty = DefaultDifficulty
	}
	if md.EstimatedTime <= 0 {
		md.EstimatedTime = DefaultEstimatedTime
	}
	if md.Tags == nil {
		md.Tags = []string{}
	}
	if strings.TrimSpace(md.Author) == "" {
		md.Author = DefaultAuthor
	}
	if strings.TrimSpace(md.CreatedAt) == "" {
		md.CreatedAt = now().UTC().Format(time.RFC3339)
	}
	if strings.TrimSpace(md.GeneratedBy) == "" {
		md.GeneratedBy = opts.Model
		if md.GeneratedBy == "" {
			md.GeneratedBy = unknownGenerator
		}
	}
	if doc.Content.LearningObjectives == nil {
		doc.Content.LearningObjectives = []string{}
	}

	for i := range doc.Content.Sections {
		s := &doc.Content.Sections[i]
		if s.ID == "" {
			s.ID = lessons.FlexID(strconv.Itoa(i + 1))
		}
		if s.Order <= 0 {
			s.Order = lessons.FlexInt(i + 1)
		}
		if s.Visuals != nil {
			s.Visuals.Type = strings.ToLower(strings.TrimSpace(s.Visuals.Type))
		}
	}

	if a := doc.Assessment; a != nil {
		if a.PassingScore <= 0 {
			a.PassingScore = DefaultPassingScore
		}
		if a.Questions == nil {
			a.Questions = []lessons.Question{}
		}
		for i := range a.Questions {
			q := &a.Questions[i]
			q.Difficulty = strings.ToLower(strings.TrimSpace(q.Difficulty))
			if q.ID == "" {
				q.ID = lessons.FlexID(strconv.Itoa(i + 1))
			}
		}
		a.TotalQuestions = lessons.FlexInt(len(a.Questions))
	}
	if c := doc.Certificate; c != nil && c.Criteria.MinScore <= 0 {
		c.Criteria.MinScore = DefaultPassingScore
		if doc.Assessment != nil {
			c.Criteria.MinScore = doc.Assessment.PassingScore
		}
	}
}
