package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pavelanni/codedrill/internal/model"
)

func TestGrade(t *testing.T) {
	g := New()

	mc := model.Question{Type: model.QuestionMultipleChoice, Options: []string{"O(n)", "O(1)"}, CorrectAnswer: "O(n)", Points: 5}
	tf := model.Question{Type: model.QuestionTrueFalse, CorrectAnswer: "true", Points: 2}
	ot := model.Question{Type: model.QuestionOutputTracing, CorrectAnswer: "1\n2\n3", Points: 4}
	essay := model.Question{Type: model.QuestionEssay, Points: 10}
	ca := model.Question{Type: model.QuestionCodeAnalysis, Points: 10}

	tests := []struct {
		name        string
		q           model.Question
		response    string
		wantPoints  float64
		wantCorrect bool
		wantManual  bool
	}{
		{"choice exact", mc, "O(n)", 5, true, false},
		{"choice padded", mc, "  O(n) ", 5, true, false},
		{"choice wrong", mc, "O(1)", 0, false, false},
		{"tf true", tf, "TRUE", 2, true, false},
		{"tf yes", tf, "yes", 2, true, false},
		{"tf false", tf, "f", 0, false, false},
		{"tf garbage", tf, "maybe", 0, false, false},
		{"output crlf and trailing space", ot, "1 \r\n2\r\n3\r\n\r\n", 4, true, false},
		{"output wrong", ot, "1\n2", 0, false, false},
		{"essay manual", essay, "words", 0, false, true},
		{"code analysis manual", ca, "it leaks", 0, false, true},
		{"unknown type manual", model.Question{Type: "drawing", Points: 3}, "x", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.Grade(tt.q, tt.response)
			assert.Equal(t, tt.wantPoints, res.Points)
			assert.Equal(t, tt.wantCorrect, res.Correct)
			assert.Equal(t, tt.wantManual, res.NeedsManual)
			assert.Equal(t, tt.q.Points, res.MaxPoints)
		})
	}
}

func TestTrueFalseBadKey(t *testing.T) {
	res := New().Grade(model.Question{Type: model.QuestionTrueFalse, CorrectAnswer: "perhaps", Points: 1}, "true")
	assert.True(t, res.NeedsManual)
}

func TestIsCorrect(t *testing.T) {
	assert.True(t, IsCorrect(5, 10))
	assert.True(t, IsCorrect(10, 10))
	assert.False(t, IsCorrect(4.9, 10))
	assert.True(t, IsCorrect(1, 0))
	assert.False(t, IsCorrect(0, 0))
}

func TestNormalizeOutput(t *testing.T) {
	assert.Equal(t, "a\n  b", NormalizeOutput("\n\na  \r\n  b\t\n\n"))
	assert.Equal(t, "", NormalizeOutput("\r\n \n"))
}
