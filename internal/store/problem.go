package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/codedrill/internal/model"
)

const problemColumns = `p.id, p.slug, p.title, p.difficulty, p.category, p.description, p.starter_code, p.created_at`

// CreateProblem stores a coding problem.
func (s *Store) CreateProblem(ctx context.Context, p model.Problem) (int64, error) {
	return insertID(ctx, s.db,
		`INSERT INTO problems (slug, title, difficulty, category, description, starter_code, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.Slug, p.Title, p.Difficulty, p.Category, p.Description, p.StarterCode, now(),
	)
}

// GetProblemBySlug returns a problem. Solved is set for userID.
func (s *Store) GetProblemBySlug(ctx context.Context, slug string, userID int64) (model.Problem, error) {
	var p model.Problem
	err := s.db.QueryRowContext(ctx,
		`SELECT `+problemColumns+`,
			EXISTS (SELECT 1 FROM problem_submissions ps
			        WHERE ps.problem_id = p.id AND ps.user_id = $2 AND ps.verdict = $3)
		 FROM problems p WHERE p.slug = $1`,
		slug, userID, model.VerdictAccepted,
	).Scan(&p.ID, &p.Slug, &p.Title, &p.Difficulty, &p.Category, &p.Description, &p.StarterCode, &p.CreatedAt, &p.Solved)
	return p, err
}

// GetProblem returns a problem by ID without the solved flag.
func (s *Store) GetProblem(ctx context.Context, id int64) (model.Problem, error) {
	var p model.Problem
	err := s.db.QueryRowContext(ctx, `SELECT `+problemColumns+` FROM problems p WHERE p.id = $1`, id).
		Scan(&p.ID, &p.Slug, &p.Title, &p.Difficulty, &p.Category, &p.Description, &p.StarterCode, &p.CreatedAt)
	return p, err
}

// ProblemFilter narrows ListProblems. Zero fields match everything.
type ProblemFilter struct {
	Difficulty model.Difficulty
	Category   string
	UserID     int64 // whose solved flag to compute
}

// ListProblems returns problems ordered by difficulty then title.
func (s *Store) ListProblems(ctx context.Context, f ProblemFilter) ([]model.Problem, error) {
	args := []any{f.UserID, model.VerdictAccepted}
	var where []string
	if f.Difficulty != "" {
		args = append(args, f.Difficulty)
		where = append(where, fmt.Sprintf("p.difficulty = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("p.category = $%d", len(args)))
	}
	query := `SELECT ` + problemColumns + `,
			EXISTS (SELECT 1 FROM problem_submissions ps
			        WHERE ps.problem_id = p.id AND ps.user_id = $1 AND ps.verdict = $2)
		 FROM problems p`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE p.difficulty WHEN 'easy' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, p.title`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Problem
	for rows.Next() {
		var p model.Problem
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &p.Difficulty, &p.Category, &p.Description,
			&p.StarterCode, &p.CreatedAt, &p.Solved); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateSubmission records a judged submission.
func (s *Store) CreateSubmission(ctx context.Context, sub model.ProblemSubmission) (int64, error) {
	at := sub.CreatedAt
	if at.IsZero() {
		at = now()
	}
	return insertID(ctx, s.db,
		`INSERT INTO problem_submissions (problem_id, user_id, language, code, verdict, runtime_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sub.ProblemID, sub.UserID, sub.Language, sub.Code, sub.Verdict, sub.RuntimeMS, at,
	)
}

// ListSubmissions returns a user's submissions, newest first. A zero
// problemID lists every problem.
func (s *Store) ListSubmissions(ctx context.Context, userID, problemID int64) ([]model.ProblemSubmission, error) {
	query := `SELECT id, problem_id, user_id, language, code, verdict, runtime_ms, created_at
		 FROM problem_submissions WHERE user_id = $1`
	args := []any{userID}
	if problemID != 0 {
		query += ` AND problem_id = $2`
		args = append(args, problemID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ProblemSubmission
	for rows.Next() {
		var sub model.ProblemSubmission
		if err := rows.Scan(&sub.ID, &sub.ProblemID, &sub.UserID, &sub.Language, &sub.Code,
			&sub.Verdict, &sub.RuntimeMS, &sub.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Acceptance is one accepted submission joined with its user and problem.
type Acceptance struct {
	UserID      int64
	Username    string
	DisplayName string
	ProblemID   int64
	Difficulty  model.Difficulty
	Category    string
	At          time.Time
}

func (s *Store) listAcceptances(ctx context.Context, extra string, args ...any) ([]Acceptance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.display_name, p.id, p.difficulty, p.category, ps.created_at
		 FROM problem_submissions ps
		 JOIN users u ON u.id = ps.user_id
		 JOIN problems p ON p.id = ps.problem_id
		 WHERE ps.verdict = $1 AND u.active = TRUE`+extra+`
		 ORDER BY ps.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Acceptance
	for rows.Next() {
		var a Acceptance
		if err := rows.Scan(&a.UserID, &a.Username, &a.DisplayName, &a.ProblemID, &a.Difficulty, &a.Category, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAcceptances returns every accepted submission by an active user.
func (s *Store) ListAcceptances(ctx context.Context) ([]Acceptance, error) {
	return s.listAcceptances(ctx, "", model.VerdictAccepted)
}

// ListUserAcceptances returns one user's accepted submissions.
func (s *Store) ListUserAcceptances(ctx context.Context, userID int64) ([]Acceptance, error) {
	return s.listAcceptances(ctx, ` AND u.id = $2`, model.VerdictAccepted, userID)
}
