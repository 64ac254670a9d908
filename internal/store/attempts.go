package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelanni/codedrill/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordAttempt(ctx context.Context, e execer, a model.QuestionAttempt) error {
	at := a.CreatedAt
	if at.IsZero() {
		at = now()
	}
	_, err := e.ExecContext(ctx,
		`INSERT INTO question_attempts (user_id, question_id, correct, source, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.UserID, a.QuestionID, a.Correct, a.Source, at,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// RecordAttempt appends one correctness observation to a user's history.
func (s *Store) RecordAttempt(ctx context.Context, a model.QuestionAttempt) error {
	return recordAttempt(ctx, s.db, a)
}

// ListAttempts returns a user's history, oldest first.
func (s *Store) ListAttempts(ctx context.Context, userID int64) ([]model.QuestionAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, question_id, correct, source, created_at
		 FROM question_attempts WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.QuestionAttempt
	for rows.Next() {
		var a model.QuestionAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuestionID, &a.Correct, &a.Source, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CategoryStats totals a user's attempts per question category.
// Accuracy is left for the caller.
func (s *Store) CategoryStats(ctx context.Context, userID int64) ([]model.CategoryStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.category, COUNT(*), SUM(CASE WHEN a.correct THEN 1 ELSE 0 END)
		 FROM question_attempts a
		 JOIN exam_questions q ON q.id = a.question_id
		 WHERE a.user_id = $1 AND q.category <> ''
		 GROUP BY q.category ORDER BY q.category`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CategoryStat
	for rows.Next() {
		var c model.CategoryStat
		if err := rows.Scan(&c.Category, &c.Attempts, &c.Correct); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
