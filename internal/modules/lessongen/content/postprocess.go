package content

import (
	"strings"

	"github.com/yungbote/lessonforge-backend/internal/domain/lessons"
)

// Keywords decide which lessons keep their code examples. Matching is a
// case-insensitive substring test.
type Keywords struct {
	NonTechnical []string `yaml:"non_technical"`
	Technical    []string `yaml:"technical"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		NonTechnical: []string{
			"history", "literature", "art", "music", "geography", "biology",
			"chemistry", "physics", "mathematics", "science", "social studies",
			"language arts", "physical education", "health",
		},
		Technical: []string{"program", "code", "tech", "software", "web", "app"},
	}
}

type Report struct {
	CodeExamplesRemoved int
	QuestionsRemoved    int
}

// PostProcess drops empty code examples, code examples on non-technical
// lessons, and questions that do not have exactly one correct option.
func PostProcess(doc *lessons.Document, kw Keywords) Report {
	var rep Report
	if doc == nil {
		return rep
	}

	category := strings.ToLower(doc.Metadata.Category)
	technical := containsAny(category, kw.Technical)
	for _, tag := range doc.Metadata.Tags {
		if containsAny(strings.ToLower(tag), kw.Technical) {
			technical = true
			break
		}
	}
	nonTechnical := containsAny(category, kw.NonTechnical)

	for i := range doc.Content.Sections {
		s := &doc.Content.Sections[i]
		if s.CodeExample == nil {
			continue
		}
		if strings.TrimSpace(s.CodeExample.Code) == "" || (nonTechnical && !technical) {
			s.CodeExample = nil
			rep.CodeExamplesRemoved++
		}
	}

	if a := doc.Assessment; a != nil {
		kept := a.Questions[:0]
		for _, q := range a.Questions {
			if validQuestion(q) {
				kept = append(kept, q)
				continue
			}
			rep.QuestionsRemoved++
		}
		if kept == nil {
			kept = []lessons.Question{}
		}
		a.Questions = kept
		a.TotalQuestions = lessons.FlexInt(len(kept))
	}
	return rep
}

func validQuestion(q lessons.Question) bool {
	if len(q.Options) == 0 {
		return false
	}
	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
		}
	}
	return correct == 1
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
