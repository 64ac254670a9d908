package store

import (
	"context"

	"github.com/pavelanni/codedrill/internal/model"
)

// ListSubmissionRows returns one row per session of a template, ordered by
// student username.
func (s *Store) ListSubmissionRows(ctx context.Context, templateID int64) ([]model.SubmissionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.username, u.display_name, s.id, s.status, s.auto_submitted, s.started_at,
			s.submitted_at, s.score, s.max_score
		 FROM exam_sessions s
		 JOIN users u ON u.id = s.student_id
		 WHERE s.template_id = $1
		 ORDER BY u.username, s.id`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SubmissionRow
	for rows.Next() {
		var r model.SubmissionRow
		if err := rows.Scan(&r.Username, &r.DisplayName, &r.SessionID, &r.Status, &r.AutoSubmitted,
			&r.StartedAt, &r.SubmittedAt, &r.Score, &r.MaxScore); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
