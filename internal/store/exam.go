package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/codedrill/internal/model"
)

const sessionColumns = `id, template_id, student_id, status, started_at, deadline_at, submitted_at, auto_submitted, score, max_score`

func scanSession(row interface{ Scan(...any) error }) (model.ExamSession, error) {
	var s model.ExamSession
	err := row.Scan(&s.ID, &s.TemplateID, &s.StudentID, &s.Status, &s.StartedAt, &s.DeadlineAt,
		&s.SubmittedAt, &s.AutoSubmitted, &s.Score, &s.MaxScore)
	return s, err
}

const answerColumns = `id, session_id, question_id, position, response, saved_at, auto_points,
	professor_points, feedback, llm_points, llm_feedback, needs_manual, graded_at`

func scanAnswer(row interface{ Scan(...any) error }) (model.Answer, error) {
	var a model.Answer
	err := row.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.Position, &a.Response, &a.SavedAt,
		&a.AutoPoints, &a.ProfessorPoints, &a.Feedback, &a.LLMPoints, &a.LLMFeedback, &a.NeedsManual, &a.GradedAt)
	return a, err
}

// CreateExamSession starts a session with one empty answer per question.
func (s *Store) CreateExamSession(ctx context.Context, sess model.ExamSession, questions []model.Question) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var maxScore float64
	for _, q := range questions {
		maxScore += q.Points
	}
	id, err := insertID(ctx, tx,
		`INSERT INTO exam_sessions (template_id, student_id, status, started_at, deadline_at, max_score)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sess.TemplateID, sess.StudentID, model.StatusInProgress, sess.StartedAt, sess.DeadlineAt, maxScore,
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	for i, q := range questions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exam_answers (session_id, question_id, position, needs_manual) VALUES ($1, $2, $3, $4)`,
			id, q.ID, i+1, q.Type.IsManual(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert answer slot: %w", err)
		}
	}
	return id, tx.Commit()
}

// GetExamSession returns a session by ID.
func (s *Store) GetExamSession(ctx context.Context, id int64) (model.ExamSession, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// FindExamSession returns the student's session for a template, or nil if
// the student has never started it.
func (s *Store) FindExamSession(ctx context.Context, templateID, studentID int64) (*model.ExamSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE template_id = $1 AND student_id = $2 ORDER BY id DESC LIMIT 1`, templateID, studentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) listSessions(ctx context.Context, query string, args ...any) ([]model.ExamSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ExamSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListExamSessions returns every session of a template.
func (s *Store) ListExamSessions(ctx context.Context, templateID int64) ([]model.ExamSession, error) {
	return s.listSessions(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE template_id = $1 ORDER BY id`, templateID)
}

// ListStudentSessions returns a student's sessions across all templates.
func (s *Store) ListStudentSessions(ctx context.Context, studentID int64) ([]model.ExamSession, error) {
	return s.listSessions(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE student_id = $1 ORDER BY id`, studentID)
}

// ListOverdueSessions returns in-progress sessions whose deadline is before t.
func (s *Store) ListOverdueSessions(ctx context.Context, t time.Time) ([]model.ExamSession, error) {
	all, err := s.listSessions(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE status = $1 ORDER BY id`, model.StatusInProgress)
	if err != nil {
		return nil, err
	}
	var out []model.ExamSession
	for _, sess := range all {
		if sess.DeadlineAt.Before(t) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// ListAnswers returns a session's answers in question order.
func (s *Store) ListAnswers(ctx context.Context, sessionID int64) ([]model.Answer, error) {
	return listAnswers(ctx, s.db, sessionID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listAnswers(ctx context.Context, q queryer, sessionID int64) ([]model.Answer, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM exam_answers WHERE session_id = $1 ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAnswer returns the answer to one question of a session.
func (s *Store) GetAnswer(ctx context.Context, sessionID, questionID int64) (model.Answer, error) {
	return scanAnswer(s.db.QueryRowContext(ctx,
		`SELECT `+answerColumns+` FROM exam_answers WHERE session_id = $1 AND question_id = $2`,
		sessionID, questionID))
}

// SaveResponse stores the student's current response to a question.
func (s *Store) SaveResponse(ctx context.Context, sessionID, questionID int64, response string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_answers SET response = $1, saved_at = $2 WHERE session_id = $3 AND question_id = $4`,
		response, now(), sessionID, questionID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetLLMSuggestion records the model's proposed grade for an answer.
func (s *Store) SetLLMSuggestion(ctx context.Context, answerID int64, points float64, feedback string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_answers SET llm_points = $1, llm_feedback = $2 WHERE id = $3`,
		points, feedback, answerID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Submission is everything a submit writes.
type Submission struct {
	SessionID     int64
	SubmittedAt   time.Time
	AutoSubmitted bool
	Status        model.SessionStatus
	Score         float64
	Answers       []model.Answer // only the grading columns are written
	Attempts      []model.QuestionAttempt
}

// SaveSubmission closes an in-progress session in one transaction. It
// returns model.ErrNotInProgress when the session was already closed.
func (s *Store) SaveSubmission(ctx context.Context, sub Submission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE exam_sessions SET status = $1, submitted_at = $2, auto_submitted = $3, score = $4
		 WHERE id = $5 AND status = $6`,
		sub.Status, sub.SubmittedAt, sub.AutoSubmitted, sub.Score, sub.SessionID, model.StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := expectOne(res); err != nil {
		return model.ErrNotInProgress
	}
	for _, a := range sub.Answers {
		_, err := tx.ExecContext(ctx,
			`UPDATE exam_answers SET auto_points = $1, feedback = $2, needs_manual = $3, graded_at = $4
			 WHERE id = $5`,
			a.AutoPoints, a.Feedback, a.NeedsManual, a.GradedAt, a.ID,
		)
		if err != nil {
			return fmt.Errorf("grade answer %d: %w", a.ID, err)
		}
	}
	for _, at := range sub.Attempts {
		if err := recordAttempt(ctx, tx, at); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ManualGrade is a professor's grade for one answer.
type ManualGrade struct {
	SessionID  int64
	QuestionID int64
	Points     float64
	Feedback   string
	Attempt    model.QuestionAttempt
}

// SaveManualGrade records a professor grade. When no answer of the session
// is left awaiting a grade, the session becomes graded with the sum of final
// points. Only the first grade of a manual answer adds history; regrades and
// overrides of auto-graded answers only change points.
func (s *Store) SaveManualGrade(ctx context.Context, g ManualGrade) (model.ExamSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ExamSession{}, err
	}
	defer tx.Rollback()

	var prev sql.NullFloat64
	var manual bool
	if err := tx.QueryRowContext(ctx,
		`SELECT professor_points, needs_manual FROM exam_answers WHERE session_id = $1 AND question_id = $2`,
		g.SessionID, g.QuestionID).Scan(&prev, &manual); err != nil {
		return model.ExamSession{}, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE exam_answers SET professor_points = $1, feedback = $2, graded_at = $3
		 WHERE session_id = $4 AND question_id = $5`,
		g.Points, g.Feedback, now(), g.SessionID, g.QuestionID,
	)
	if err != nil {
		return model.ExamSession{}, fmt.Errorf("grade answer: %w", err)
	}
	// Objective answers were recorded at submit; an override is not a new attempt.
	if manual && !prev.Valid {
		if err := recordAttempt(ctx, tx, g.Attempt); err != nil {
			return model.ExamSession{}, err
		}
	}

	answers, err := listAnswers(ctx, tx, g.SessionID)
	if err != nil {
		return model.ExamSession{}, err
	}
	var score float64
	pending := false
	for _, a := range answers {
		score += a.FinalPoints()
		if a.AwaitingGrade() {
			pending = true
		}
	}
	if pending {
		_, err = tx.ExecContext(ctx, `UPDATE exam_sessions SET score = $1 WHERE id = $2`, score, g.SessionID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE exam_sessions SET score = $1, status = $2 WHERE id = $3`,
			score, model.StatusGraded, g.SessionID)
	}
	if err != nil {
		return model.ExamSession{}, fmt.Errorf("update session score: %w", err)
	}
	sess, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, g.SessionID))
	if err != nil {
		return model.ExamSession{}, err
	}
	return sess, tx.Commit()
}
