// Package practice runs timed, ungraded practice sessions drawn from a
// course's published questions.
package practice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pavelanni/codedrill/internal/grading"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/rbac"
	"github.com/pavelanni/codedrill/internal/selection"
	"github.com/pavelanni/codedrill/internal/store"
)

const (
	MaxCount   = 50
	MaxMinutes = 180
)

// Options configures a Service.
type Options struct {
	DefaultCount   int
	DefaultMinutes int
	Rand           *rand.Rand
	Now            func() time.Time
}

type Service struct {
	store          *store.Store
	grader         *grading.Grader
	defaultCount   int
	defaultMinutes int
	now            func() time.Time

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

func NewService(st *store.Store, opts Options) *Service {
	s := &Service{
		store:          st,
		grader:         grading.New(),
		defaultCount:   opts.DefaultCount,
		defaultMinutes: opts.DefaultMinutes,
		now:            opts.Now,
		rng:            opts.Rand,
	}
	if s.defaultCount <= 0 {
		s.defaultCount = 10
	}
	if s.defaultMinutes <= 0 {
		s.defaultMinutes = 20
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Request describes the practice session a user asks for.
type Request struct {
	CourseID     int64              `json:"course_id"`
	Mode         model.PracticeMode `json:"mode"`
	QuestionType model.QuestionType `json:"question_type"`
	Category     string             `json:"category"`
	Count        int                `json:"count"`
	Minutes      int                `json:"minutes"`
}

// View is a practice session with its items and (redacted) questions.
type View struct {
	Session   model.PracticeSession `json:"session"`
	Items     []model.PracticeItem  `json:"items"`
	Questions []model.Question      `json:"questions"`
	Summary   model.PracticeSummary `json:"summary"`
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func (s *Service) normalize(req *Request) error {
	switch req.Mode {
	case "":
		req.Mode = model.PracticeSingle
		fallthrough
	case model.PracticeSingle:
		if !req.QuestionType.IsValid() {
			return fmt.Errorf("%w: single mode needs a valid question type", model.ErrValidation)
		}
	case model.PracticeMixed:
		req.QuestionType = ""
	default:
		return fmt.Errorf("%w: unknown mode %q", model.ErrValidation, req.Mode)
	}
	if req.Count <= 0 {
		req.Count = s.defaultCount
	}
	if req.Minutes <= 0 {
		req.Minutes = s.defaultMinutes
	}
	req.Count = min(req.Count, MaxCount)
	req.Minutes = min(req.Minutes, MaxMinutes)
	return nil
}

// Create draws questions for u and opens a practice session.
func (s *Service) Create(ctx context.Context, u *model.User, req Request) (*View, error) {
	if !rbac.Can(u, "practice:use") {
		return nil, model.ErrForbidden
	}
	if err := s.normalize(&req); err != nil {
		return nil, err
	}
	course, err := s.store.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, notFound(err)
	}
	if !rbac.CanManageCourse(u, course) {
		enrolled, err := s.store.IsEnrolled(ctx, course.ID, u.ID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			return nil, model.ErrForbidden
		}
	}

	pool, err := s.store.ListPracticePool(ctx, store.QuestionFilter{
		CourseID: req.CourseID, Type: req.QuestionType, Category: req.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	if len(pool) == 0 {
		return nil, model.ErrNoQuestions
	}
	attempts, err := s.store.ListAttempts(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := selection.BuildExposure(attempts)

	s.mu.Lock()
	var picked []model.Question
	if req.Mode == model.PracticeMixed {
		picked = selection.SelectMixedQuestions(pool, history, req.Count, s.rng)
	} else {
		picked = selection.SelectPracticeQuestions(pool, history, req.Count, s.rng)
	}
	s.mu.Unlock()

	ids := make([]int64, len(picked))
	for i, q := range picked {
		ids[i] = q.ID
	}
	start := s.now()
	id, err := s.store.CreatePractice(ctx, model.PracticeSession{
		UserID:       u.ID,
		CourseID:     req.CourseID,
		Mode:         req.Mode,
		QuestionType: req.QuestionType,
		Category:     req.Category,
		StartedAt:    start,
		DeadlineAt:   start.Add(time.Duration(req.Minutes) * time.Minute),
	}, ids)
	if err != nil {
		return nil, fmt.Errorf("create practice: %w", err)
	}
	slog.Info("practice started", "practice_id", id, "user_id", u.ID, "mode", req.Mode, "questions", len(ids))
	return s.Get(ctx, u, id)
}

// own loads a session owned by u, closing it as expired if its time ran out.
func (s *Service) own(ctx context.Context, u *model.User, id int64) (model.PracticeSession, error) {
	p, err := s.store.GetPractice(ctx, id)
	if err != nil {
		return p, notFound(err)
	}
	if u == nil || p.UserID != u.ID {
		return p, model.ErrForbidden
	}
	if p.Status == model.PracticeActive && s.now().After(p.DeadlineAt) {
		at := p.DeadlineAt
		if err := s.store.SetPracticeStatus(ctx, id, model.PracticeExpired, at); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		p.Status = model.PracticeExpired
		p.CompletedAt = &at
	}
	return p, nil
}

// Get returns the session with its items. Answer keys are shown only for
// answered items.
func (s *Service) Get(ctx context.Context, u *model.User, id int64) (*View, error) {
	p, err := s.own(ctx, u, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListPracticeItems(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.QuestionID
	}
	byID, err := s.store.ListQuestionsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	questions := make([]model.Question, 0, len(items))
	for _, it := range items {
		q := byID[it.QuestionID]
		if it.AnsweredAt == nil && p.Status == model.PracticeActive {
			q = q.Redacted()
		}
		questions = append(questions, q)
	}
	return &View{Session: p, Items: items, Questions: questions, Summary: summarize(items)}, nil
}

// AnswerResult is the immediate feedback for a practice answer.
type AnswerResult struct {
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
	Feedback      string `json:"feedback,omitempty"`
}

// Answer checks one item. Objective questions are graded on the spot;
// free-text questions rely on the student's self-assessment.
func (s *Service) Answer(ctx context.Context, u *model.User, practiceID, itemID int64, response string, selfAssessed *bool) (*AnswerResult, error) {
	p, err := s.own(ctx, u, practiceID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case model.PracticeExpired:
		return nil, model.ErrPracticeExpired
	case model.PracticeCompleted:
		return nil, model.ErrNotInProgress
	}

	items, err := s.store.ListPracticeItems(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	var item *model.PracticeItem
	for i := range items {
		if items[i].ID == itemID {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return nil, model.ErrNotFound
	}
	if item.AnsweredAt != nil {
		return nil, model.ErrAlreadyAnswered
	}
	q, err := s.store.GetQuestion(ctx, item.QuestionID)
	if err != nil {
		return nil, notFound(err)
	}

	res := s.grader.Grade(q, response)
	correct := res.Correct
	if res.NeedsManual {
		if selfAssessed == nil {
			return nil, fmt.Errorf("%w: self-assessment required for %s questions", model.ErrValidation, q.Type)
		}
		correct = *selfAssessed
	}
	err = s.store.AnswerPracticeItem(ctx, itemID, response, model.QuestionAttempt{
		UserID:     u.ID,
		QuestionID: q.ID,
		Correct:    correct,
		Source:     model.SourcePractice,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return nil, err
	}
	return &AnswerResult{Correct: correct, CorrectAnswer: q.CorrectAnswer, Feedback: res.Feedback}, nil
}

// Complete closes the session and returns its summary. Completing a closed
// session just returns the summary.
func (s *Service) Complete(ctx context.Context, u *model.User, id int64) (model.PracticeSummary, error) {
	p, err := s.own(ctx, u, id)
	if err != nil {
		return model.PracticeSummary{}, err
	}
	if p.Status == model.PracticeActive {
		err := s.store.SetPracticeStatus(ctx, id, model.PracticeCompleted, s.now())
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return model.PracticeSummary{}, err
		}
	}
	items, err := s.store.ListPracticeItems(ctx, id)
	if err != nil {
		return model.PracticeSummary{}, err
	}
	sum := summarize(items)
	slog.Info("practice completed", "practice_id", id, "user_id", u.ID, "answered", sum.Answered, "correct", sum.Correct)
	return sum, nil
}

func summarize(items []model.PracticeItem) model.PracticeSummary {
	sum := model.PracticeSummary{Total: len(items)}
	for _, it := range items {
		if it.AnsweredAt == nil {
			continue
		}
		sum.Answered++
		if it.Correct != nil && *it.Correct {
			sum.Correct++
		}
	}
	return sum
}
