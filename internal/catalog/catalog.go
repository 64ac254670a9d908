// Package catalog manages the authored content of the platform: courses,
// announcements, exam templates and their questions, coding problems,
// challenges and user accounts.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/rbac"
	"github.com/pavelanni/codedrill/internal/store"
)

// Invalidator drops cached rankings after a new accepted solve.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	store   *store.Store
	rankers Invalidator
	now     func() time.Time
}

// NewService returns a Service. rankers may be nil.
func NewService(st *store.Store, rankers Invalidator) *Service {
	return &Service{
		store:   st,
		rankers: rankers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrValidation, fmt.Sprintf(format, args...))
}

func permit(u *model.User, perm string) error {
	if !rbac.Can(u, perm) {
		return model.ErrForbidden
	}
	return nil
}

// managedCourse loads a course the user may edit.
func (s *Service) managedCourse(ctx context.Context, u *model.User, courseID int64) (model.Course, error) {
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return c, notFound(err)
	}
	if !rbac.CanManageCourse(u, c) {
		return c, model.ErrForbidden
	}
	return c, nil
}

// canRead reports whether u may see a course's content.
func (s *Service) canRead(ctx context.Context, u *model.User, c model.Course) (bool, error) {
	if !rbac.Can(u, "course:view") {
		return false, nil
	}
	if rbac.CanManageCourse(u, c) {
		return true, nil
	}
	return s.store.IsEnrolled(ctx, c.ID, u.ID)
}

// CreateCourse stores a course owned by the calling professor. Admins may
// name another professor as owner.
func (s *Service) CreateCourse(ctx context.Context, u *model.User, c model.Course) (*model.Course, error) {
	if err := permit(u, "course:create"); err != nil {
		return nil, err
	}
	c.Code = strings.TrimSpace(c.Code)
	c.Title = strings.TrimSpace(c.Title)
	if c.Code == "" || c.Title == "" {
		return nil, invalid("code and title are required")
	}
	if u.Role != model.UserRoleAdmin || c.ProfessorID == 0 {
		c.ProfessorID = u.ID
	}
	id, err := s.store.CreateCourse(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	slog.Info("created course", "id", id, "code", c.Code, "professor_id", c.ProfessorID)
	return s.getCourse(ctx, id)
}

func (s *Service) getCourse(ctx context.Context, id int64) (*model.Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetCourse returns a course. Course metadata is public to signed-in users.
func (s *Service) GetCourse(ctx context.Context, u *model.User, id int64) (*model.Course, error) {
	if err := permit(u, "course:view"); err != nil {
		return nil, err
	}
	return s.getCourse(ctx, id)
}

// ListCourses returns the courses relevant to u: professors get the ones
// they teach, everyone else the whole catalogue.
func (s *Service) ListCourses(ctx context.Context, u *model.User) ([]model.Course, error) {
	if err := permit(u, "course:view"); err != nil {
		return nil, err
	}
	if u.Role == model.UserRoleProfessor {
		return s.store.ListCoursesByProfessor(ctx, u.ID)
	}
	return s.store.ListCourses(ctx)
}

// ListEnrolledCourses returns the courses u is enrolled in.
func (s *Service) ListEnrolledCourses(ctx context.Context, u *model.User) ([]model.Course, error) {
	if err := permit(u, "course:view"); err != nil {
		return nil, err
	}
	return s.store.ListEnrolledCourses(ctx, u.ID)
}

// Enroll adds the student to a course. Enrolling twice is allowed.
func (s *Service) Enroll(ctx context.Context, u *model.User, courseID int64) error {
	if err := permit(u, "course:enroll"); err != nil {
		return err
	}
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return notFound(err)
	}
	return s.store.Enroll(ctx, courseID, u.ID)
}

// CreateAnnouncement posts a message to a course.
func (s *Service) CreateAnnouncement(ctx context.Context, u *model.User, a model.Announcement) (*model.Announcement, error) {
	if err := permit(u, "announcement:create"); err != nil {
		return nil, err
	}
	if _, err := s.managedCourse(ctx, u, a.CourseID); err != nil {
		return nil, err
	}
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" || strings.TrimSpace(a.Body) == "" {
		return nil, invalid("title and body are required")
	}
	a.AuthorID = u.ID
	id, err := s.store.CreateAnnouncement(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create announcement: %w", err)
	}
	a.ID = id
	return &a, nil
}

// ListAnnouncements returns a course's announcements, newest first.
func (s *Service) ListAnnouncements(ctx context.Context, u *model.User, courseID int64) ([]model.Announcement, error) {
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, notFound(err)
	}
	ok, err := s.canRead(ctx, u, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrForbidden
	}
	return s.store.ListAnnouncements(ctx, courseID)
}

// RecentAnnouncements returns the newest announcements across u's courses.
func (s *Service) RecentAnnouncements(ctx context.Context, u *model.User, limit int) ([]model.Announcement, error) {
	if err := permit(u, "course:view"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	return s.store.ListRecentAnnouncements(ctx, u.ID, limit)
}
