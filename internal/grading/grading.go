package grading

import (
	"strings"

	"github.com/pavelanni/codedrill/internal/model"
)

// Result is the outcome of grading a single response.
type Result struct {
	Points      float64
	MaxPoints   float64
	Correct     bool
	NeedsManual bool
	Feedback    string
}

// Strategy grades one question type.
type Strategy interface {
	Grade(q model.Question, response string) Result
}

// Grader routes by question type to the correct Strategy.
type Grader struct {
	strategies map[model.QuestionType]Strategy
}

// New installs the built-in strategies.
func New() *Grader {
	return &Grader{
		strategies: map[model.QuestionType]Strategy{
			model.QuestionMultipleChoice: choiceStrategy{},
			model.QuestionTrueFalse:      trueFalseStrategy{},
			model.QuestionOutputTracing:  outputStrategy{},
			model.QuestionEssay:          manualStrategy{},
			model.QuestionCodeAnalysis:   manualStrategy{},
		},
	}
}

// Grade grades response against q. Unknown types fall back to manual grading.
func (g *Grader) Grade(q model.Question, response string) Result {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: "no strategy available"}
	}
	return s.Grade(q, response)
}

// IsCorrect reports whether awarded points count as a correct answer.
func IsCorrect(points, maxPoints float64) bool {
	if maxPoints <= 0 {
		return points > 0
	}
	return points >= maxPoints/2
}

func binary(q model.Question, ok bool) Result {
	res := Result{MaxPoints: q.Points, Correct: ok}
	if ok {
		res.Points = q.Points
	}
	return res
}

type choiceStrategy struct{}

func (choiceStrategy) Grade(q model.Question, response string) Result {
	return binary(q, strings.TrimSpace(response) == strings.TrimSpace(q.CorrectAnswer))
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(q model.Question, response string) Result {
	want, ok := ParseBool(q.CorrectAnswer)
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: "answer key is not true/false"}
	}
	got, ok := ParseBool(response)
	return binary(q, ok && got == want)
}

// ParseBool accepts the spellings students use for true/false answers.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y":
		return true, true
	case "false", "f", "no", "n":
		return false, true
	}
	return false, false
}

type outputStrategy struct{}

func (outputStrategy) Grade(q model.Question, response string) Result {
	return binary(q, NormalizeOutput(response) == NormalizeOutput(q.CorrectAnswer))
}

// NormalizeOutput canonicalizes program output for comparison: CRLF becomes
// LF, trailing spaces are dropped per line, and surrounding blank lines go.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

type manualStrategy struct{}

func (manualStrategy) Grade(q model.Question, _ string) Result {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: "manual grading required"}
}
