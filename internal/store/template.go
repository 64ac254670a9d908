package store

import (
	"context"

	"github.com/pavelanni/codedrill/internal/model"
)

const templateColumns = `id, course_id, title, question_type, duration_minutes, question_count, published, created_by, created_at`

func scanTemplate(row interface{ Scan(...any) error }) (model.ExamTemplate, error) {
	var t model.ExamTemplate
	err := row.Scan(&t.ID, &t.CourseID, &t.Title, &t.QuestionType, &t.DurationMinutes,
		&t.QuestionCount, &t.Published, &t.CreatedBy, &t.CreatedAt)
	return t, err
}

// CreateTemplate stores an exam template.
func (s *Store) CreateTemplate(ctx context.Context, t model.ExamTemplate) (int64, error) {
	return insertID(ctx, s.db,
		`INSERT INTO exam_templates (course_id, title, question_type, duration_minutes, question_count, published, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		t.CourseID, t.Title, t.QuestionType, t.DurationMinutes, t.QuestionCount, t.Published, t.CreatedBy, now(),
	)
}

// UpdateTemplate replaces the editable fields of a template.
func (s *Store) UpdateTemplate(ctx context.Context, t model.ExamTemplate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_templates SET title = $1, question_type = $2, duration_minutes = $3, question_count = $4
		 WHERE id = $5`,
		t.Title, t.QuestionType, t.DurationMinutes, t.QuestionCount, t.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetTemplatePublished publishes or hides a template.
func (s *Store) SetTemplatePublished(ctx context.Context, id int64, published bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE exam_templates SET published = $1 WHERE id = $2`, published, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// GetTemplate returns a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id int64) (model.ExamTemplate, error) {
	return scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM exam_templates WHERE id = $1`, id))
}

// ListTemplates returns a course's templates. With publishedOnly set,
// drafts are left out.
func (s *Store) ListTemplates(ctx context.Context, courseID int64, publishedOnly bool) ([]model.ExamTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM exam_templates WHERE course_id = $1`
	if publishedOnly {
		query += ` AND published = TRUE`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ExamTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
