// Package exam runs the exam workflow: starting a sitting, auto-saving,
// submitting, grading and exporting results.
package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/codedrill/internal/grading"
	"github.com/pavelanni/codedrill/internal/llm"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/rbac"
	"github.com/pavelanni/codedrill/internal/storage"
	"github.com/pavelanni/codedrill/internal/store"
)

// Suggester proposes grades for free-text answers.
type Suggester interface {
	SuggestGrade(ctx context.Context, q model.Question, answer string) (*llm.Suggestion, error)
}

// Options configures a Service. Zero values are usable.
type Options struct {
	LLM             Suggester         // nil disables grade suggestions
	Blobs           storage.BlobStore // nil disables stored exports
	SuggestParallel int               // concurrent LLM calls on submit
	Rand            *rand.Rand
	Now             func() time.Time
}

// Service implements the exam workflow on top of the store.
type Service struct {
	store    *store.Store
	grader   *grading.Grader
	llm      Suggester
	blobs    storage.BlobStore
	parallel int
	now      func() time.Time

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

func NewService(st *store.Store, opts Options) *Service {
	s := &Service{
		store:    st,
		grader:   grading.New(),
		llm:      opts.LLM,
		blobs:    opts.Blobs,
		parallel: opts.SuggestParallel,
		now:      opts.Now,
		rng:      opts.Rand,
	}
	if s.parallel <= 0 {
		s.parallel = 4
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// View is a session with everything needed to render or review it.
type View struct {
	Session   model.ExamSession  `json:"session"`
	Template  model.ExamTemplate `json:"template"`
	Questions []model.Question   `json:"questions"`
	Answers   []model.Answer     `json:"answers"`
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// Start opens the student's sitting of a template, or resumes the one in
// progress. Each student gets one attempt per template.
func (s *Service) Start(ctx context.Context, u *model.User, templateID int64) (*View, error) {
	if u == nil || u.Role != model.UserRoleStudent {
		return nil, model.ErrForbidden
	}
	tpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, notFound(err)
	}
	if !tpl.Published {
		return nil, model.ErrNotFound
	}
	enrolled, err := s.store.IsEnrolled(ctx, tpl.CourseID, u.ID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, model.ErrForbidden
	}

	existing, err := s.store.FindExamSession(ctx, templateID, u.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != model.StatusInProgress {
			return nil, model.ErrAlreadyAttempted
		}
		if s.overdue(*existing) {
			if _, err := s.submit(ctx, *existing, true); err != nil {
				return nil, err
			}
			return nil, model.ErrAlreadyAttempted
		}
		return s.view(ctx, u, *existing)
	}

	qs, err := s.store.ListQuestions(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, model.ErrNoQuestions
	}
	if tpl.QuestionCount > 0 && tpl.QuestionCount < len(qs) {
		s.mu.Lock()
		s.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		s.mu.Unlock()
		qs = qs[:tpl.QuestionCount]
	}

	start := s.now()
	id, err := s.store.CreateExamSession(ctx, model.ExamSession{
		TemplateID: templateID,
		StudentID:  u.ID,
		StartedAt:  start,
		DeadlineAt: start.Add(tpl.Duration()),
	}, qs)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("exam started", "session_id", id, "template_id", templateID, "student_id", u.ID, "questions", len(qs))

	sess, err := s.store.GetExamSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, u, sess)
}

func (s *Service) overdue(sess model.ExamSession) bool {
	return s.now().After(sess.DeadlineAt)
}

// ownSession loads a session the user may act on as its student.
func (s *Service) ownSession(ctx context.Context, u *model.User, sessionID int64) (model.ExamSession, error) {
	sess, err := s.store.GetExamSession(ctx, sessionID)
	if err != nil {
		return sess, notFound(err)
	}
	if u == nil || sess.StudentID != u.ID {
		return sess, model.ErrForbidden
	}
	return sess, nil
}

// SaveAnswer auto-saves a response. Saving after the deadline closes the
// session and returns model.ErrDeadlinePassed.
func (s *Service) SaveAnswer(ctx context.Context, u *model.User, sessionID, questionID int64, response string) error {
	sess, err := s.ownSession(ctx, u, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != model.StatusInProgress {
		return model.ErrNotInProgress
	}
	if s.overdue(sess) {
		if _, err := s.submit(ctx, sess, true); err != nil {
			return err
		}
		return model.ErrDeadlinePassed
	}
	if err := s.store.SaveResponse(ctx, sessionID, questionID, response); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: question %d is not part of this session", model.ErrValidation, questionID)
		}
		return err
	}
	return nil
}

// Submit closes the student's session. Submitting a closed session returns
// its current state.
func (s *Service) Submit(ctx context.Context, u *model.User, sessionID int64) (model.ExamSession, error) {
	sess, err := s.ownSession(ctx, u, sessionID)
	if err != nil {
		return sess, err
	}
	if sess.Status != model.StatusInProgress {
		return sess, nil
	}
	return s.submit(ctx, sess, s.overdue(sess))
}

func (s *Service) submit(ctx context.Context, sess model.ExamSession, auto bool) (model.ExamSession, error) {
	answers, err := s.store.ListAnswers(ctx, sess.ID)
	if err != nil {
		return sess, err
	}
	ids := make([]int64, len(answers))
	for i, a := range answers {
		ids[i] = a.QuestionID
	}
	questions, err := s.store.ListQuestionsByID(ctx, ids)
	if err != nil {
		return sess, err
	}

	at := s.now()
	sub := store.Submission{
		SessionID:     sess.ID,
		SubmittedAt:   at,
		AutoSubmitted: auto,
		Status:        model.StatusGraded,
	}
	var manual []model.Answer
	for _, a := range answers {
		q := questions[a.QuestionID]
		res := s.grader.Grade(q, a.Response)
		if res.NeedsManual {
			a.NeedsManual = true
			a.AutoPoints = nil
			a.GradedAt = nil
			manual = append(manual, a)
			sub.Status = model.StatusSubmitted
		} else {
			pts := res.Points
			a.AutoPoints = &pts
			a.NeedsManual = false
			a.GradedAt = &at
			a.Feedback = res.Feedback
			sub.Score += pts
			sub.Attempts = append(sub.Attempts, model.QuestionAttempt{
				UserID:     sess.StudentID,
				QuestionID: a.QuestionID,
				Correct:    res.Correct,
				Source:     model.SourceExam,
				CreatedAt:  at,
			})
		}
		sub.Answers = append(sub.Answers, a)
	}

	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		if errors.Is(err, model.ErrNotInProgress) {
			// Lost a race with another submit; report what it wrote.
			return s.store.GetExamSession(ctx, sess.ID)
		}
		return sess, fmt.Errorf("save submission: %w", err)
	}
	slog.Info("exam submitted", "session_id", sess.ID, "student_id", sess.StudentID,
		"auto", auto, "status", sub.Status, "score", sub.Score, "manual", len(manual))

	if s.llm != nil && len(manual) > 0 {
		s.suggestAll(ctx, manual, questions)
	}
	return s.store.GetExamSession(ctx, sess.ID)
}

// suggestAll fetches LLM suggestions for answers awaiting a professor.
// Failures are logged and leave the answer without a suggestion.
func (s *Service) suggestAll(ctx context.Context, answers []model.Answer, questions map[int64]model.Question) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for _, a := range answers {
		g.Go(func() error {
			sug, err := s.llm.SuggestGrade(gctx, questions[a.QuestionID], a.Response)
			if err != nil {
				slog.Warn("grade suggestion failed", "answer_id", a.ID, "error", err)
				return nil
			}
			if err := s.store.SetLLMSuggestion(gctx, a.ID, sug.Points, sug.Feedback); err != nil {
				slog.Warn("store grade suggestion", "answer_id", a.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// courseOf returns the template and course a session belongs to.
func (s *Service) courseOf(ctx context.Context, templateID int64) (model.ExamTemplate, model.Course, error) {
	tpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return tpl, model.Course{}, notFound(err)
	}
	course, err := s.store.GetCourse(ctx, tpl.CourseID)
	if err != nil {
		return tpl, course, notFound(err)
	}
	return tpl, course, nil
}

// gradableSession loads a closed session the user may grade.
func (s *Service) gradableSession(ctx context.Context, u *model.User, sessionID int64) (model.ExamSession, error) {
	if !rbac.Can(u, "exam:grade") {
		return model.ExamSession{}, model.ErrForbidden
	}
	sess, err := s.store.GetExamSession(ctx, sessionID)
	if err != nil {
		return sess, notFound(err)
	}
	_, course, err := s.courseOf(ctx, sess.TemplateID)
	if err != nil {
		return sess, err
	}
	if !rbac.CanManageCourse(u, course) {
		return sess, model.ErrForbidden
	}
	if sess.Status == model.StatusInProgress {
		return sess, model.ErrNotInProgress
	}
	return sess, nil
}

// GradeAnswer records a professor's points for one answer. Once nothing is
// left to grade the session becomes graded.
func (s *Service) GradeAnswer(ctx context.Context, u *model.User, sessionID, questionID int64, points float64, feedback string) (model.ExamSession, error) {
	sess, err := s.gradableSession(ctx, u, sessionID)
	if err != nil {
		return sess, err
	}
	if _, err := s.store.GetAnswer(ctx, sessionID, questionID); err != nil {
		return sess, notFound(err)
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return sess, notFound(err)
	}
	if points < 0 || points > q.Points {
		return sess, fmt.Errorf("%w: points must be between 0 and %g", model.ErrValidation, q.Points)
	}

	sess, err = s.store.SaveManualGrade(ctx, store.ManualGrade{
		SessionID:  sessionID,
		QuestionID: questionID,
		Points:     points,
		Feedback:   feedback,
		Attempt: model.QuestionAttempt{
			UserID:     sess.StudentID,
			QuestionID: questionID,
			Correct:    grading.IsCorrect(points, q.Points),
			Source:     model.SourceExam,
			CreatedAt:  s.now(),
		},
	})
	if err != nil {
		return sess, fmt.Errorf("save grade: %w", err)
	}
	slog.Info("answer graded", "session_id", sessionID, "question_id", questionID,
		"grader_id", u.ID, "points", points, "status", sess.Status)
	return sess, nil
}

// SuggestGrade asks the LLM for a grade on demand and stores it next to
// the answer.
func (s *Service) SuggestGrade(ctx context.Context, u *model.User, sessionID, questionID int64) (*llm.Suggestion, error) {
	if s.llm == nil {
		return nil, model.ErrUnavailable
	}
	if _, err := s.gradableSession(ctx, u, sessionID); err != nil {
		return nil, err
	}
	a, err := s.store.GetAnswer(ctx, sessionID, questionID)
	if err != nil {
		return nil, notFound(err)
	}
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, notFound(err)
	}
	sug, err := s.llm.SuggestGrade(ctx, q, a.Response)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetLLMSuggestion(ctx, a.ID, sug.Points, sug.Feedback); err != nil {
		return nil, err
	}
	return sug, nil
}

// Review returns a session for its student or a course grader. Students see
// answer keys only once the session is graded.
func (s *Service) Review(ctx context.Context, u *model.User, sessionID int64) (*View, error) {
	sess, err := s.store.GetExamSession(ctx, sessionID)
	if err != nil {
		return nil, notFound(err)
	}
	if u == nil {
		return nil, model.ErrForbidden
	}
	if sess.StudentID != u.ID {
		_, course, err := s.courseOf(ctx, sess.TemplateID)
		if err != nil {
			return nil, err
		}
		if !rbac.CanManageCourse(u, course) {
			return nil, model.ErrForbidden
		}
	}
	return s.view(ctx, u, sess)
}

// ListSessions returns every sitting of a template for its graders.
func (s *Service) ListSessions(ctx context.Context, u *model.User, templateID int64) ([]model.ExamSession, error) {
	_, course, err := s.courseOf(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanManageCourse(u, course) {
		return nil, model.ErrForbidden
	}
	return s.store.ListExamSessions(ctx, templateID)
}

func (s *Service) view(ctx context.Context, u *model.User, sess model.ExamSession) (*View, error) {
	tpl, err := s.store.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return nil, notFound(err)
	}
	answers, err := s.store.ListAnswers(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(answers))
	for i, a := range answers {
		ids[i] = a.QuestionID
	}
	byID, err := s.store.ListQuestionsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	redact := sess.StudentID == u.ID && sess.Status != model.StatusGraded
	questions := make([]model.Question, 0, len(answers))
	for _, a := range answers {
		q := byID[a.QuestionID]
		if redact {
			q = q.Redacted()
		}
		questions = append(questions, q)
	}
	if redact {
		for i := range answers {
			answers[i].LLMPoints = nil
			answers[i].LLMFeedback = ""
		}
	}
	return &View{Session: sess, Template: tpl, Questions: questions, Answers: answers}, nil
}
