package store

import (
	"context"

	"github.com/pavelanni/codedrill/internal/model"
)

const courseColumns = `c.id, c.code, c.title, c.description, c.professor_id, c.created_at`

func scanCourse(row interface{ Scan(...any) error }) (model.Course, error) {
	var c model.Course
	err := row.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.ProfessorID, &c.CreatedAt)
	return c, err
}

// CreateCourse stores a course.
func (s *Store) CreateCourse(ctx context.Context, c model.Course) (int64, error) {
	return insertID(ctx, s.db,
		`INSERT INTO courses (code, title, description, professor_id, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.Code, c.Title, c.Description, c.ProfessorID, now(),
	)
}

// GetCourse returns a course by ID.
func (s *Store) GetCourse(ctx context.Context, id int64) (model.Course, error) {
	return scanCourse(s.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses c WHERE c.id = $1`, id))
}

func (s *Store) listCourses(ctx context.Context, query string, args ...any) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// ListCourses returns all courses.
func (s *Store) ListCourses(ctx context.Context) ([]model.Course, error) {
	return s.listCourses(ctx, `SELECT `+courseColumns+` FROM courses c ORDER BY c.code`)
}

// ListCoursesByProfessor returns the courses a professor teaches.
func (s *Store) ListCoursesByProfessor(ctx context.Context, professorID int64) ([]model.Course, error) {
	return s.listCourses(ctx,
		`SELECT `+courseColumns+` FROM courses c WHERE c.professor_id = $1 ORDER BY c.code`, professorID)
}

// ListEnrolledCourses returns the courses a student is enrolled in.
func (s *Store) ListEnrolledCourses(ctx context.Context, userID int64) ([]model.Course, error) {
	return s.listCourses(ctx,
		`SELECT `+courseColumns+` FROM courses c
		 JOIN enrollments e ON e.course_id = c.id
		 WHERE e.user_id = $1 ORDER BY c.code`, userID)
}

// Enroll adds a user to a course. Enrolling twice is a no-op.
func (s *Store) Enroll(ctx context.Context, courseID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (course_id, user_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (course_id, user_id) DO NOTHING`,
		courseID, userID, now(),
	)
	return err
}

// IsEnrolled reports whether a user is enrolled in a course.
func (s *Store) IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND user_id = $2`, courseID, userID,
	).Scan(&n)
	return n > 0, err
}

// CreateAnnouncement stores an announcement.
func (s *Store) CreateAnnouncement(ctx context.Context, a model.Announcement) (int64, error) {
	return insertID(ctx, s.db,
		`INSERT INTO announcements (course_id, author_id, title, body, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		a.CourseID, a.AuthorID, a.Title, a.Body, now(),
	)
}

func (s *Store) listAnnouncements(ctx context.Context, query string, args ...any) ([]model.Announcement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Announcement
	for rows.Next() {
		var a model.Announcement
		if err := rows.Scan(&a.ID, &a.CourseID, &a.AuthorID, &a.Title, &a.Body, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAnnouncements returns a course's announcements, newest first.
func (s *Store) ListAnnouncements(ctx context.Context, courseID int64) ([]model.Announcement, error) {
	return s.listAnnouncements(ctx,
		`SELECT id, course_id, author_id, title, body, created_at
		 FROM announcements WHERE course_id = $1 ORDER BY id DESC`, courseID)
}

// ListRecentAnnouncements returns the newest announcements across the
// courses a user is enrolled in or teaches.
func (s *Store) ListRecentAnnouncements(ctx context.Context, userID int64, limit int) ([]model.Announcement, error) {
	return s.listAnnouncements(ctx,
		`SELECT a.id, a.course_id, a.author_id, a.title, a.body, a.created_at
		 FROM announcements a
		 JOIN courses c ON c.id = a.course_id
		 WHERE c.professor_id = $1
		    OR a.course_id IN (SELECT course_id FROM enrollments WHERE user_id = $1)
		 ORDER BY a.id DESC LIMIT $2`, userID, limit)
}
