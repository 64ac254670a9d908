package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/codedrill/internal/model"
)

const questionColumns = `q.id, q.template_id, q.course_id, q.question_type, q.category, q.difficulty,
	q.prompt, q.code_snippet, q.options_json, q.correct_answer, q.points, q.created_at`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var opts string
	err := row.Scan(&q.ID, &q.TemplateID, &q.CourseID, &q.Type, &q.Category, &q.Difficulty,
		&q.Prompt, &q.CodeSnippet, &opts, &q.CorrectAnswer, &q.Points, &q.CreatedAt)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
		return q, fmt.Errorf("decode options of question %d: %w", q.ID, err)
	}
	return q, nil
}

func encodeOptions(opts []string) (string, error) {
	if opts == nil {
		opts = []string{}
	}
	b, err := json.Marshal(opts)
	return string(b), err
}

// CreateQuestion stores a question. The course is taken from the template.
func (s *Store) CreateQuestion(ctx context.Context, q model.Question) (int64, error) {
	opts, err := encodeOptions(q.Options)
	if err != nil {
		return 0, err
	}
	var courseID int64
	if err := s.db.QueryRowContext(ctx, `SELECT course_id FROM exam_templates WHERE id = $1`, q.TemplateID).Scan(&courseID); err != nil {
		return 0, err
	}
	return insertID(ctx, s.db,
		`INSERT INTO exam_questions (template_id, course_id, question_type, category, difficulty,
			prompt, code_snippet, options_json, correct_answer, points, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		q.TemplateID, courseID, q.Type, q.Category, q.Difficulty, q.Prompt, q.CodeSnippet, opts,
		q.CorrectAnswer, q.Points, now(),
	)
}

// UpdateQuestion replaces the content of a question.
func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	opts, err := encodeOptions(q.Options)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_questions SET question_type = $1, category = $2, difficulty = $3, prompt = $4,
			code_snippet = $5, options_json = $6, correct_answer = $7, points = $8
		 WHERE id = $9`,
		q.Type, q.Category, q.Difficulty, q.Prompt, q.CodeSnippet, opts, q.CorrectAnswer, q.Points, q.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// QuestionInUse reports whether any exam session includes the question.
func (s *Store) QuestionInUse(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_answers WHERE question_id = $1`, id).Scan(&n)
	return n > 0, err
}

// DeleteQuestion removes a question.
func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exam_questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	return scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM exam_questions q WHERE q.id = $1`, id))
}

func (s *Store) listQuestions(ctx context.Context, query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ListQuestions returns a template's questions in creation order.
func (s *Store) ListQuestions(ctx context.Context, templateID int64) ([]model.Question, error) {
	return s.listQuestions(ctx,
		`SELECT `+questionColumns+` FROM exam_questions q WHERE q.template_id = $1 ORDER BY q.id`, templateID)
}

// QuestionFilter narrows the practice pool.
type QuestionFilter struct {
	CourseID int64
	Type     model.QuestionType // empty matches every type
	Category string             // empty matches every category
}

// ListPracticePool returns the questions of a course's published templates.
func (s *Store) ListPracticePool(ctx context.Context, f QuestionFilter) ([]model.Question, error) {
	var (
		where = []string{"q.course_id = $1", "t.published = TRUE"}
		args  = []any{f.CourseID}
	)
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("q.question_type = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("q.category = $%d", len(args)))
	}
	return s.listQuestions(ctx,
		`SELECT `+questionColumns+` FROM exam_questions q
		 JOIN exam_templates t ON t.id = q.template_id
		 WHERE `+strings.Join(where, " AND ")+` ORDER BY q.id`, args...)
}

// ListQuestionsByID returns the questions with the given IDs, keyed by ID.
func (s *Store) ListQuestionsByID(ctx context.Context, ids []int64) (map[int64]model.Question, error) {
	out := make(map[int64]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	qs, err := s.listQuestions(ctx,
		`SELECT `+questionColumns+` FROM exam_questions q WHERE q.id IN (`+strings.Join(ph, ", ")+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, q := range qs {
		out[q.ID] = q
	}
	return out, nil
}

// ImportQuestions inserts a question bank into a template in one transaction.
func (s *Store) ImportQuestions(ctx context.Context, templateID int64, qs []model.QuestionImport) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var courseID int64
	if err := tx.QueryRowContext(ctx, `SELECT course_id FROM exam_templates WHERE id = $1`, templateID).Scan(&courseID); err != nil {
		return 0, fmt.Errorf("get template %d: %w", templateID, err)
	}
	for i, q := range qs {
		opts, err := encodeOptions(q.Options)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO exam_questions (template_id, course_id, question_type, category, difficulty,
				prompt, code_snippet, options_json, correct_answer, points, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			templateID, courseID, q.Type, q.Category, q.Difficulty, q.Prompt, q.CodeSnippet,
			opts, q.CorrectAnswer, q.Points, now(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(qs), nil
}
