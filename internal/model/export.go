package model

import "time"

// QuestionImport is used for loading questions from JSON or YAML banks.
type QuestionImport struct {
	Type          QuestionType `json:"type" yaml:"type"`
	Category      string       `json:"category" yaml:"category"`
	Difficulty    Difficulty   `json:"difficulty" yaml:"difficulty"`
	Prompt        string       `json:"prompt" yaml:"prompt"`
	CodeSnippet   string       `json:"code_snippet" yaml:"code_snippet"`
	Options       []string     `json:"options" yaml:"options"`
	CorrectAnswer string       `json:"correct_answer" yaml:"correct_answer"`
	Points        float64      `json:"points" yaml:"points"`
}

// SubmissionRow holds one exam session for CSV export.
type SubmissionRow struct {
	Username      string
	DisplayName   string
	SessionID     int64
	Status        SessionStatus
	AutoSubmitted bool
	StartedAt     time.Time
	SubmittedAt   *time.Time
	Score         float64
	MaxScore      float64
}

// Percent returns the score as a percentage of the maximum.
func (r SubmissionRow) Percent() float64 {
	if r.MaxScore <= 0 {
		return 0
	}
	return r.Score / r.MaxScore * 100
}
