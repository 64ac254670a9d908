package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/codedrill/internal/grading"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/rbac"
)

const defaultDurationMinutes = 30

func validateTemplate(t *model.ExamTemplate) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return invalid("title is required")
	}
	if !t.QuestionType.IsValid() {
		return invalid("unknown question type %q", t.QuestionType)
	}
	if t.DurationMinutes == 0 {
		t.DurationMinutes = defaultDurationMinutes
	}
	if t.DurationMinutes < 0 || t.QuestionCount < 0 {
		return invalid("duration and question count must not be negative")
	}
	return nil
}

// managedTemplate loads a template whose course u may edit.
func (s *Service) managedTemplate(ctx context.Context, u *model.User, id int64) (model.ExamTemplate, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return t, notFound(err)
	}
	if _, err := s.managedCourse(ctx, u, t.CourseID); err != nil {
		return t, err
	}
	return t, nil
}

// CreateTemplate adds an unpublished exam template to a course.
func (s *Service) CreateTemplate(ctx context.Context, u *model.User, t model.ExamTemplate) (*model.ExamTemplate, error) {
	if err := permit(u, "template:create"); err != nil {
		return nil, err
	}
	if _, err := s.managedCourse(ctx, u, t.CourseID); err != nil {
		return nil, err
	}
	if err := validateTemplate(&t); err != nil {
		return nil, err
	}
	t.CreatedBy = u.ID
	t.Published = false
	id, err := s.store.CreateTemplate(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return s.getTemplate(ctx, id)
}

func (s *Service) getTemplate(ctx context.Context, id int64) (*model.ExamTemplate, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// UpdateTemplate changes a template's title, type, duration and size.
func (s *Service) UpdateTemplate(ctx context.Context, u *model.User, t model.ExamTemplate) (*model.ExamTemplate, error) {
	if err := permit(u, "template:update"); err != nil {
		return nil, err
	}
	if _, err := s.managedTemplate(ctx, u, t.ID); err != nil {
		return nil, err
	}
	if err := validateTemplate(&t); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return nil, notFound(err)
	}
	return s.getTemplate(ctx, t.ID)
}

// SetPublished publishes or hides a template. An empty template cannot be
// published.
func (s *Service) SetPublished(ctx context.Context, u *model.User, id int64, published bool) (*model.ExamTemplate, error) {
	if err := permit(u, "template:publish"); err != nil {
		return nil, err
	}
	if _, err := s.managedTemplate(ctx, u, id); err != nil {
		return nil, err
	}
	if published {
		qs, err := s.store.ListQuestions(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(qs) == 0 {
			return nil, model.ErrNoQuestions
		}
	}
	if err := s.store.SetTemplatePublished(ctx, id, published); err != nil {
		return nil, notFound(err)
	}
	slog.Info("template visibility changed", "template_id", id, "published", published, "by", u.Username)
	return s.getTemplate(ctx, id)
}

// GetTemplate returns a template. Students only see published ones of
// courses they are enrolled in.
func (s *Service) GetTemplate(ctx context.Context, u *model.User, id int64) (*model.ExamTemplate, error) {
	t, err := s.getTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCourse(ctx, t.CourseID)
	if err != nil {
		return nil, notFound(err)
	}
	if rbac.CanManageCourse(u, c) {
		return t, nil
	}
	ok, err := s.canRead(ctx, u, c)
	if err != nil {
		return nil, err
	}
	if !ok || !t.Published {
		return nil, model.ErrNotFound
	}
	return t, nil
}

// ListTemplates returns a course's templates. Drafts are only listed for
// the people who manage the course.
func (s *Service) ListTemplates(ctx context.Context, u *model.User, courseID int64) ([]model.ExamTemplate, error) {
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, notFound(err)
	}
	if rbac.CanManageCourse(u, c) {
		return s.store.ListTemplates(ctx, courseID, false)
	}
	ok, err := s.canRead(ctx, u, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrForbidden
	}
	return s.store.ListTemplates(ctx, courseID, true)
}

// ValidateQuestion checks a question against the rules of its type and
// fills in defaults.
func ValidateQuestion(q *model.Question) error {
	if !q.Type.IsValid() {
		return invalid("unknown question type %q", q.Type)
	}
	q.Prompt = strings.TrimSpace(q.Prompt)
	if q.Prompt == "" {
		return invalid("prompt is required")
	}
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	if !q.Difficulty.IsValid() {
		return invalid("unknown difficulty %q", q.Difficulty)
	}
	if q.Points == 0 {
		q.Points = 1
	}
	if q.Points < 0 {
		return invalid("points must be positive")
	}
	q.Category = strings.TrimSpace(q.Category)

	switch q.Type {
	case model.QuestionMultipleChoice:
		if len(q.Options) < 2 {
			return invalid("multiple choice needs at least 2 options")
		}
		answer := strings.TrimSpace(q.CorrectAnswer)
		if !slices.ContainsFunc(q.Options, func(o string) bool { return strings.TrimSpace(o) == answer }) {
			return invalid("correct answer must be one of the options")
		}
	case model.QuestionTrueFalse:
		v, ok := grading.ParseBool(q.CorrectAnswer)
		if !ok {
			return invalid("correct answer must be true or false")
		}
		q.CorrectAnswer = fmt.Sprint(v)
		q.Options = nil
	case model.QuestionOutputTracing:
		if grading.NormalizeOutput(q.CorrectAnswer) == "" {
			return invalid("expected output is required")
		}
		q.Options = nil
	default:
		q.Options = nil
	}
	return nil
}

func fromImport(qi model.QuestionImport) model.Question {
	return model.Question{
		Type:          qi.Type,
		Category:      qi.Category,
		Difficulty:    qi.Difficulty,
		Prompt:        qi.Prompt,
		CodeSnippet:   qi.CodeSnippet,
		Options:       qi.Options,
		CorrectAnswer: qi.CorrectAnswer,
		Points:        qi.Points,
	}
}

func toImport(q model.Question) model.QuestionImport {
	return model.QuestionImport{
		Type:          q.Type,
		Category:      q.Category,
		Difficulty:    q.Difficulty,
		Prompt:        q.Prompt,
		CodeSnippet:   q.CodeSnippet,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		Points:        q.Points,
	}
}

// checkType fills in the template's type and rejects a mismatch.
func checkType(t model.ExamTemplate, q *model.Question) error {
	if q.Type == "" {
		q.Type = t.QuestionType
	}
	if q.Type != t.QuestionType {
		return invalid("template takes %s questions, got %s", t.QuestionType, q.Type)
	}
	return nil
}

// CreateQuestion adds a question to a template.
func (s *Service) CreateQuestion(ctx context.Context, u *model.User, q model.Question) (*model.Question, error) {
	if err := permit(u, "question:create"); err != nil {
		return nil, err
	}
	t, err := s.managedTemplate(ctx, u, q.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := checkType(t, &q); err != nil {
		return nil, err
	}
	if err := ValidateQuestion(&q); err != nil {
		return nil, err
	}
	id, err := s.store.CreateQuestion(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return s.getQuestion(ctx, id)
}

func (s *Service) getQuestion(ctx context.Context, id int64) (*model.Question, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// managedQuestion loads a question whose course u may edit.
func (s *Service) managedQuestion(ctx context.Context, u *model.User, id int64) (model.Question, model.ExamTemplate, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return q, model.ExamTemplate{}, notFound(err)
	}
	t, err := s.managedTemplate(ctx, u, q.TemplateID)
	return q, t, err
}

// UpdateQuestion replaces a question's content. The template stays fixed.
func (s *Service) UpdateQuestion(ctx context.Context, u *model.User, q model.Question) (*model.Question, error) {
	if err := permit(u, "question:update"); err != nil {
		return nil, err
	}
	_, t, err := s.managedQuestion(ctx, u, q.ID)
	if err != nil {
		return nil, err
	}
	q.TemplateID = t.ID
	if err := checkType(t, &q); err != nil {
		return nil, err
	}
	if err := ValidateQuestion(&q); err != nil {
		return nil, err
	}
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return nil, notFound(err)
	}
	return s.getQuestion(ctx, q.ID)
}

// DeleteQuestion removes a question that no exam session has used yet.
// Questions already handed out keep backing their answers and history.
func (s *Service) DeleteQuestion(ctx context.Context, u *model.User, id int64) error {
	if err := permit(u, "question:delete"); err != nil {
		return err
	}
	if _, _, err := s.managedQuestion(ctx, u, id); err != nil {
		return err
	}
	used, err := s.store.QuestionInUse(ctx, id)
	if err != nil {
		return fmt.Errorf("check question use: %w", err)
	}
	if used {
		return fmt.Errorf("question %d is part of an exam session: %w", id, model.ErrConflict)
	}
	return notFound(s.store.DeleteQuestion(ctx, id))
}

// ListQuestions returns a template's questions with answer keys.
func (s *Service) ListQuestions(ctx context.Context, u *model.User, templateID int64) ([]model.Question, error) {
	if err := permit(u, "question:view"); err != nil {
		return nil, err
	}
	if _, err := s.managedTemplate(ctx, u, templateID); err != nil {
		return nil, err
	}
	return s.store.ListQuestions(ctx, templateID)
}

// ImportResult reports what ImportBank did.
type ImportResult struct {
	Imported int    `json:"imported"`
	Skipped  bool   `json:"skipped"`
	Hash     string `json:"hash"`
}

// ParseBank decodes a question bank. Files named *.json are JSON, anything
// else is read as YAML.
func ParseBank(name string, data []byte) ([]model.QuestionImport, error) {
	var qs []model.QuestionImport
	var err error
	if strings.EqualFold(filepath.Ext(name), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&qs)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&qs)
	}
	if err != nil {
		return nil, invalid("parse %s: %v", name, err)
	}
	return qs, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ImportBank loads a question bank file into a template. A file whose
// content was already imported into the template is skipped.
func (s *Service) ImportBank(ctx context.Context, u *model.User, templateID int64, name string, data []byte) (*ImportResult, error) {
	if err := permit(u, "question:import"); err != nil {
		return nil, err
	}
	t, err := s.managedTemplate(ctx, u, templateID)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Hash: sha256sum(data)}
	key := fmt.Sprintf("template-%d:%s", templateID, res.Hash)
	prev, err := s.store.GetImportedFileHash(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check import status: %w", err)
	}
	if prev != "" {
		slog.Info("question bank unchanged, skipping", "name", name, "template_id", templateID, "first_imported_as", prev)
		res.Skipped = true
		return res, nil
	}

	bank, err := ParseBank(name, data)
	if err != nil {
		return nil, err
	}
	for i := range bank {
		q := fromImport(bank[i])
		if err := checkType(t, &q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		if err := ValidateQuestion(&q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		bank[i] = toImport(q)
	}

	n, err := s.store.ImportQuestions(ctx, templateID, bank)
	if err != nil {
		return nil, fmt.Errorf("import questions: %w", err)
	}
	if err := s.store.SetImportedFileHash(ctx, key, filepath.Base(name)); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}
	res.Imported = n
	slog.Info("imported questions", "name", name, "template_id", templateID, "count", n)
	return res, nil
}
