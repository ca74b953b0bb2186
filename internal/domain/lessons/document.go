package lessons

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// Document is the structured lesson produced by the text model.
type Document struct {
	Metadata    Metadata     `json:"metadata"`
	Content     Body         `json:"content"`
	Assessment  *Assessment  `json:"assessment,omitempty"`
	Certificate *Certificate `json:"certificate,omitempty"`
}

type Metadata struct {
	Title         string      `json:"title"`
	Description   string      `json:"description,omitempty"`
	Category      string      `json:"category,omitempty"`
	Difficulty    string      `json:"difficulty"`
	EstimatedTime FlexInt     `json:"estimatedTime"`
	Tags          FlexStrings `json:"tags"`
	Author        string      `json:"author"`
	CreatedAt     string      `json:"createdAt"`
	GeneratedBy   string      `json:"generatedBy"`
}

type Body struct {
	Introduction       string      `json:"introduction"`
	LearningObjectives FlexStrings `json:"learningObjectives"`
	Sections           []Section   `json:"sections"`
}

type Section struct {
	ID              FlexID       `json:"id"`
	Title           string       `json:"title"`
	Content         string       `json:"content"`
	Type            string       `json:"type,omitempty"`
	Order           FlexInt      `json:"order"`
	Visuals         *Visuals     `json:"visuals,omitempty"`
	GeneratedVisual *string      `json:"generatedVisual,omitempty"`
	CodeExample     *CodeExample `json:"codeExample,omitempty"`
	Subsections     []Subsection `json:"subsections,omitempty"`
}

type Visuals struct {
	Description string `json:"description"`
	Type        string `json:"type"`
}

type CodeExample struct {
	Language    string `json:"language"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code"`
}

type Subsection struct {
	ID      FlexID `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Assessment struct {
	ID             FlexID      `json:"id"`
	Type           string      `json:"type,omitempty"`
	PassingScore   FlexInt     `json:"passingScore"`
	TotalQuestions FlexInt     `json:"totalQuestions"`
	TimeLimit      FlexInt     `json:"timeLimit,omitempty"`
	Instructions   FlexStrings `json:"instructions,omitempty"`
	Questions      []Question  `json:"questions"`
}

type Question struct {
	ID          FlexID   `json:"id"`
	Question    string   `json:"question"`
	Options     []Option `json:"options"`
	Explanation string   `json:"explanation,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
}

type Option struct {
	ID        FlexID   `json:"id"`
	Text      string   `json:"text"`
	IsCorrect FlexBool `json:"isCorrect"`
}

type Certificate struct {
	Enabled  FlexBool            `json:"enabled"`
	Criteria CertificateCriteria `json:"criteria"`
}

type CertificateCriteria struct {
	MinScore FlexInt `json:"minScore"`
}

// FlexID accepts both JSON numbers and strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// FlexInt accepts numbers, numeric strings and strings like "15 minutes".
// Anything else, objects and arrays included, decodes to zero so the
// normalizer can apply its default.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = 0
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		*f = FlexInt(int(t))
	case string:
		*f = FlexInt(leadingInt(t))
	}
	return nil
}

// FlexBool accepts booleans, "true"/"false"/"yes"/"no" strings and numbers.
// Unrecognized values decode to false.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	*f = false
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*f = FlexBool(t)
	case float64:
		*f = t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "correct":
			*f = true
		}
	}
	return nil
}

// FlexStrings accepts a string array or a single comma-separated string.
// Scalar array items are kept as text; blanks and nested values are dropped.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(b []byte) error {
	*f = nil
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			add(part)
		}
	case []any:
		out = make([]string, 0, len(t))
		for _, item := range t {
			switch it := item.(type) {
			case string:
				add(it)
			case float64:
				add(strconv.FormatFloat(it, 'f', -1, 64))
			case bool:
				add(strconv.FormatBool(it))
			}
		}
	default:
		return nil
	}
	*f = out
	return nil
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && unicode.IsDigit(rune(s[end])) {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
