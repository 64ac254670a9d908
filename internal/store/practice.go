package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/codedrill/internal/model"
)

const practiceColumns = `id, user_id, course_id, mode, question_type, category, status, started_at, deadline_at, completed_at`

func scanPractice(row interface{ Scan(...any) error }) (model.PracticeSession, error) {
	var p model.PracticeSession
	err := row.Scan(&p.ID, &p.UserID, &p.CourseID, &p.Mode, &p.QuestionType, &p.Category,
		&p.Status, &p.StartedAt, &p.DeadlineAt, &p.CompletedAt)
	return p, err
}

// CreatePractice stores a practice session and its items in order.
func (s *Store) CreatePractice(ctx context.Context, p model.PracticeSession, questionIDs []int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := insertID(ctx, tx,
		`INSERT INTO practice_sessions (user_id, course_id, mode, question_type, category, status, started_at, deadline_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.UserID, p.CourseID, p.Mode, p.QuestionType, p.Category, model.PracticeActive, p.StartedAt, p.DeadlineAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert practice: %w", err)
	}
	for i, qid := range questionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO practice_items (practice_id, question_id, position) VALUES ($1, $2, $3)`,
			id, qid, i+1); err != nil {
			return 0, fmt.Errorf("insert practice item: %w", err)
		}
	}
	return id, tx.Commit()
}

// GetPractice returns a practice session by ID.
func (s *Store) GetPractice(ctx context.Context, id int64) (model.PracticeSession, error) {
	return scanPractice(s.db.QueryRowContext(ctx,
		`SELECT `+practiceColumns+` FROM practice_sessions WHERE id = $1`, id))
}

// ListPracticeItems returns a session's items in order.
func (s *Store) ListPracticeItems(ctx context.Context, practiceID int64) ([]model.PracticeItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, practice_id, question_id, position, response, correct, answered_at
		 FROM practice_items WHERE practice_id = $1 ORDER BY position`, practiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PracticeItem
	for rows.Next() {
		var it model.PracticeItem
		if err := rows.Scan(&it.ID, &it.PracticeID, &it.QuestionID, &it.Position, &it.Response, &it.Correct, &it.AnsweredAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AnswerPracticeItem stores the answer to an unanswered item and appends the
// outcome to the user's history. Answering twice returns
// model.ErrAlreadyAnswered.
func (s *Store) AnswerPracticeItem(ctx context.Context, itemID int64, response string, attempt model.QuestionAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE practice_items SET response = $1, correct = $2, answered_at = $3
		 WHERE id = $4 AND answered_at IS NULL`,
		response, attempt.Correct, attempt.CreatedAt, itemID,
	)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return model.ErrAlreadyAnswered
	}
	if err := recordAttempt(ctx, tx, attempt); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPracticeStatus moves an active session to status. It returns
// sql.ErrNoRows if the session is no longer active.
func (s *Store) SetPracticeStatus(ctx context.Context, id int64, status model.PracticeStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE practice_sessions SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4`,
		status, at, id, model.PracticeActive,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// CountCompletedPractice returns how many practice sessions a user finished.
func (s *Store) CountCompletedPractice(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM practice_sessions WHERE user_id = $1 AND status = $2`,
		userID, model.PracticeCompleted,
	).Scan(&n)
	return n, err
}
