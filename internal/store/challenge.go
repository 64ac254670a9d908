package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/codedrill/internal/model"
)

const challengeColumns = `id, title, description, invite_code, starts_at, ends_at, created_by, created_at`

func scanChallenge(row interface{ Scan(...any) error }) (model.Challenge, error) {
	var c model.Challenge
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.InviteCode, &c.StartsAt, &c.EndsAt, &c.CreatedBy, &c.CreatedAt)
	return c, err
}

// CreateChallenge stores a challenge with its problem set.
func (s *Store) CreateChallenge(ctx context.Context, c model.Challenge) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := insertID(ctx, tx,
		`INSERT INTO challenges (title, description, invite_code, starts_at, ends_at, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		c.Title, c.Description, c.InviteCode, c.StartsAt, c.EndsAt, c.CreatedBy, now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert challenge: %w", err)
	}
	for _, p := range c.Problems {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO challenge_problems (challenge_id, problem_id, points) VALUES ($1, $2, $3)`,
			id, p.ProblemID, p.Points); err != nil {
			return 0, fmt.Errorf("insert challenge problem %d: %w", p.ProblemID, err)
		}
	}
	return id, tx.Commit()
}

// GetChallenge returns a challenge with its problems.
func (s *Store) GetChallenge(ctx context.Context, id int64) (model.Challenge, error) {
	c, err := scanChallenge(s.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
	if err != nil {
		return c, err
	}
	c.Problems, err = s.listChallengeProblems(ctx, id)
	return c, err
}

// GetChallengeByInvite looks a challenge up by its invite code.
func (s *Store) GetChallengeByInvite(ctx context.Context, code string) (model.Challenge, error) {
	c, err := scanChallenge(s.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE invite_code = $1`, code))
	if err != nil {
		return c, err
	}
	c.Problems, err = s.listChallengeProblems(ctx, c.ID)
	return c, err
}

func (s *Store) listChallengeProblems(ctx context.Context, challengeID int64) ([]model.ChallengeProblem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT problem_id, points FROM challenge_problems WHERE challenge_id = $1 ORDER BY problem_id`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ChallengeProblem
	for rows.Next() {
		var p model.ChallengeProblem
		if err := rows.Scan(&p.ProblemID, &p.Points); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListChallenges returns all challenges, newest first, without problems.
func (s *Store) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+challengeColumns+` FROM challenges ORDER BY starts_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// JoinChallenge adds a participant. Joining twice is a no-op.
func (s *Store) JoinChallenge(ctx context.Context, challengeID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenge_participants (challenge_id, user_id, joined_at) VALUES ($1, $2, $3)
		 ON CONFLICT (challenge_id, user_id) DO NOTHING`,
		challengeID, userID, now(),
	)
	return err
}

// IsParticipant reports whether a user joined a challenge.
func (s *Store) IsParticipant(ctx context.Context, challengeID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenge_participants WHERE challenge_id = $1 AND user_id = $2`,
		challengeID, userID,
	).Scan(&n)
	return n > 0, err
}

// ListChallengeAcceptances returns participants' accepted submissions to the
// challenge's problems. The time window is applied by the caller.
func (s *Store) ListChallengeAcceptances(ctx context.Context, challengeID int64) ([]Acceptance, error) {
	return s.listAcceptances(ctx,
		` AND ps.user_id IN (SELECT user_id FROM challenge_participants WHERE challenge_id = $2)
		  AND ps.problem_id IN (SELECT problem_id FROM challenge_problems WHERE challenge_id = $2)`,
		model.VerdictAccepted, challengeID)
}
