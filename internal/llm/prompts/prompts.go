package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/codedrill/internal/model"
)

//go:embed *.txt
var embedded embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant for majors.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant for electives.
	PromptLenient PromptVariant = "lenient"
)

// Variants lists every variant a Set must provide.
var Variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range Variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	QuestionType model.QuestionType
	MaxPoints    float64
	Prompt       string
	CodeSnippet  string
	Reference    string
	Answer       string
}

// Set holds one parsed grading template per variant.
type Set struct {
	grade map[PromptVariant]*template.Template
}

// Default returns the templates compiled into the binary.
func Default() (*Set, error) {
	return Load(embedded)
}

// Load parses grade_<variant>.txt for every variant from fsys.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{grade: make(map[PromptVariant]*template.Template, len(Variants))}
	for _, v := range Variants {
		name := "grade_" + string(v) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		s.grade[v] = tmpl
	}
	return s, nil
}

// BuildGradePrompt renders the grading prompt for one answer.
func (s *Set) BuildGradePrompt(variant PromptVariant, q model.Question, answer string) (string, error) {
	tmpl, ok := s.grade[variant]
	if !ok {
		return "", fmt.Errorf("invalid prompt variant: %s", variant)
	}
	data := GradeData{
		QuestionType: q.Type,
		MaxPoints:    q.Points,
		Prompt:       q.Prompt,
		CodeSnippet:  q.CodeSnippet,
		Reference:    q.CorrectAnswer,
		Answer:       sanitizeAnswer(answer),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeAnswer strips delimiter look-alikes so an answer cannot close
// its own tag, and bounds its length.
func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}
	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
