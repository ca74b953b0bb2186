package prompts

import (
	"fmt"
	"strings"
	"time"
)

const lessonShape = `{
  "metadata": {
    "title": "<compelling title>",
    "description": "<2-3 sentence overview>",
    "category": "<subject area, e.g. science, history, programming>",
    "difficulty": "beginner|intermediate|advanced",
    "estimatedTime": <total minutes as a number>,
    "tags": ["<tag>", "<tag>", "<tag>"],
    "author": "AI Instructor",
    "createdAt": "%s"
  },
  "content": {
    "introduction": "<engaging opening paragraph>",
    "learningObjectives": ["<objective>", "<objective>", "<objective>"],
    "sections": [
      {
        "id": 1,
        "title": "<section title>",
        "content": "<detailed body; **bold**, bullet points and \n\n line breaks are allowed>",
        "type": "text",
        "order": 1,
        "visuals": {
          "description": "<what an illustration of this section should show>",
          "type": "image|diagram|code"
        },
        "codeExample": {
          "language": "<language>",
          "title": "<title>",
          "description": "<what the code does>",
          "code": "<code>"
        },
        "subsections": [
          { "id": "1.1", "title": "<subsection title>", "content": "<subsection body>" }
        ]
      }
    ]
  },
  "assessment": {
    "id": 1,
    "type": "mcq",
    "passingScore": 70,
    "totalQuestions": <number of questions>,
    "timeLimit": <minutes>,
    "instructions": ["Read each question carefully", "Select the best answer", "You need 70%% to pass"],
    "questions": [
      {
        "id": 1,
        "question": "<question text>",
        "options": [
          { "id": "a", "text": "<option>", "isCorrect": false },
          { "id": "b", "text": "<option>", "isCorrect": true },
          { "id": "c", "text": "<option>", "isCorrect": false },
          { "id": "d", "text": "<option>", "isCorrect": false }
        ],
        "explanation": "<why the correct option is correct>",
        "difficulty": "easy|medium"
      }
    ]
  },
  "certificate": { "enabled": true, "criteria": { "minScore": 70 } }
}`

// BuildLessonPrompt asks the text model for one lesson document about topic.
// now is embedded as metadata.createdAt so the output is reproducible in tests.
func BuildLessonPrompt(topic string, now time.Time) string {
	topic = strings.TrimSpace(topic)
	var b strings.Builder
	b.WriteString("You are an expert educational content creator. Write a complete, well-structured lesson for this request: ")
	b.WriteString(fmt.Sprintf("%q", topic))
	b.WriteString("\n\nRules:\n")
	b.WriteString("1. Respond with a single JSON object and nothing else. No prose, no markdown fences, no comments.\n")
	b.WriteString("2. Write between 3 and 6 sections. Every section needs a non-empty title and content.\n")
	b.WriteString("3. Sections may have subsections; each subsection needs a title and content.\n")
	b.WriteString("4. Write between 5 and 12 multiple-choice questions mixing easy and medium difficulty.\n")
	b.WriteString("5. Every question has exactly one option with \"isCorrect\": true.\n")
	b.WriteString("6. Give each section a visuals.description that an illustrator could draw.\n")
	b.WriteString("7. Include codeExample ONLY for programming or technical topics. Omit the field entirely otherwise.\n")
	b.WriteString("8. Content must be accurate, age-appropriate where the request implies an audience, and engaging.\n")
	b.WriteString("\nThe JSON must have this shape:\n")
	b.WriteString(fmt.Sprintf(lessonShape, now.UTC().Format(time.RFC3339)))
	b.WriteString("\n\nReturn ONLY the JSON object for ")
	b.WriteString(fmt.Sprintf("%q", topic))
	b.WriteString(".")
	return b.String()
}

// BuildImageDescriptionPrompt asks for a textual stand-in when no image
// backend produced a picture.
func BuildImageDescriptionPrompt(description string) string {
	return fmt.Sprintf(`Write a detailed visual description for: %q.
Requirements:
1. Return ONLY the description, no explanations or markdown.
2. Be specific about the components, colors, perspective and composition.
3. Mention labels or annotations that would help a learner.
4. Describe how the parts relate to each other spatially.
5. Keep it simple enough to draw by hand.
Format: A simple illustration showing <scene> with <visual elements> in <style>`, strings.TrimSpace(description))
}

func BuildImagePrompt(description string) string {
	return fmt.Sprintf("A child-friendly educational illustration showing %s, colorful, cartoon style, suitable for kids learning", strings.TrimSpace(description))
}

func BuildDiagramPrompt(description string) string {
	return fmt.Sprintf(`An educational diagram for children about: %q. Clear and simple layout, bright child-friendly colors, cartoon-style drawings, short readable labels, focused on the educational content.`, strings.TrimSpace(description))
}
