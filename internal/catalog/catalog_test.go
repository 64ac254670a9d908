package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/codedrill/internal/cache"
	"github.com/pavelanni/codedrill/internal/leaderboard"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/store"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type fixture struct {
	ctx   context.Context
	st    *store.Store
	svc   *Service
	inv   *countingInvalidator
	admin *model.User
	prof  *model.User
	other *model.User
	stu   *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{ctx: context.Background(), st: st, inv: &countingInvalidator{}}
	f.svc = NewService(st, f.inv)
	mk := func(name string, role model.UserRole) *model.User {
		id, err := st.CreateUser(f.ctx, model.User{Username: name, DisplayName: name, PasswordHash: "x", Role: role, Active: true})
		require.NoError(t, err)
		u, err := st.GetUserByID(f.ctx, id)
		require.NoError(t, err)
		return u
	}
	f.admin = mk("admin", model.UserRoleAdmin)
	f.prof = mk("prof", model.UserRoleProfessor)
	f.other = mk("other", model.UserRoleProfessor)
	f.stu = mk("stu", model.UserRoleStudent)
	return f
}

func (f *fixture) course(t *testing.T) *model.Course {
	t.Helper()
	c, err := f.svc.CreateCourse(f.ctx, f.prof, model.Course{Code: "CS101", Title: "Intro"})
	require.NoError(t, err)
	return c
}

func (f *fixture) template(t *testing.T, courseID int64, qt model.QuestionType) *model.ExamTemplate {
	t.Helper()
	tpl, err := f.svc.CreateTemplate(f.ctx, f.prof, model.ExamTemplate{CourseID: courseID, Title: "Midterm", QuestionType: qt})
	require.NoError(t, err)
	return tpl
}

func TestCourses(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateCourse(f.ctx, f.stu, model.Course{Code: "X", Title: "X"})
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.CreateCourse(f.ctx, f.prof, model.Course{Code: " ", Title: "X"})
	assert.ErrorIs(t, err, model.ErrValidation)

	c := f.course(t)
	assert.Equal(t, f.prof.ID, c.ProfessorID)
	_, err = f.svc.CreateCourse(f.ctx, f.admin, model.Course{Code: "CS2", Title: "Two", ProfessorID: f.other.ID})
	require.NoError(t, err)

	mine, err := f.svc.ListCourses(f.ctx, f.prof)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "CS101", mine[0].Code)

	all, err := f.svc.ListCourses(f.ctx, f.stu)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, f.svc.Enroll(f.ctx, f.stu, c.ID))
	require.NoError(t, f.svc.Enroll(f.ctx, f.stu, c.ID))
	enrolled, err := f.svc.ListEnrolledCourses(f.ctx, f.stu)
	require.NoError(t, err)
	assert.Len(t, enrolled, 1)

	assert.ErrorIs(t, f.svc.Enroll(f.ctx, f.stu, 999), model.ErrNotFound)
	assert.ErrorIs(t, f.svc.Enroll(f.ctx, f.prof, c.ID), model.ErrForbidden)

	_, err = f.svc.GetCourse(f.ctx, f.stu, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAnnouncements(t *testing.T) {
	f := newFixture(t)
	c := f.course(t)

	_, err := f.svc.CreateAnnouncement(f.ctx, f.other, model.Announcement{CourseID: c.ID, Title: "t", Body: "b"})
	assert.ErrorIs(t, err, model.ErrForbidden, "only the course's professor")
	_, err = f.svc.CreateAnnouncement(f.ctx, f.prof, model.Announcement{CourseID: c.ID, Title: "t"})
	assert.ErrorIs(t, err, model.ErrValidation)

	a, err := f.svc.CreateAnnouncement(f.ctx, f.prof, model.Announcement{CourseID: c.ID, Title: "Welcome", Body: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, f.prof.ID, a.AuthorID)
	_, err = f.svc.CreateAnnouncement(f.ctx, f.admin, model.Announcement{CourseID: c.ID, Title: "Rules", Body: "Be nice"})
	require.NoError(t, err)

	_, err = f.svc.ListAnnouncements(f.ctx, f.stu, c.ID)
	assert.ErrorIs(t, err, model.ErrForbidden, "not enrolled yet")

	require.NoError(t, f.svc.Enroll(f.ctx, f.stu, c.ID))
	list, err := f.svc.ListAnnouncements(f.ctx, f.stu, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Rules", list[0].Title)

	recent, err := f.svc.RecentAnnouncements(f.ctx, f.stu, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestTemplates(t *testing.T) {
	f := newFixture(t)
	c := f.course(t)

	_, err := f.svc.CreateTemplate(f.ctx, f.other, model.ExamTemplate{CourseID: c.ID, Title: "x", QuestionType: model.QuestionEssay})
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.CreateTemplate(f.ctx, f.prof, model.ExamTemplate{CourseID: c.ID, Title: "x", QuestionType: "drawing"})
	assert.ErrorIs(t, err, model.ErrValidation)

	tpl := f.template(t, c.ID, model.QuestionTrueFalse)
	assert.False(t, tpl.Published)
	assert.Equal(t, defaultDurationMinutes, tpl.DurationMinutes)

	tpl.Title = "Final"
	tpl.QuestionCount = 3
	updated, err := f.svc.UpdateTemplate(f.ctx, f.prof, *tpl)
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, 3, updated.QuestionCount)

	_, err = f.svc.SetPublished(f.ctx, f.prof, tpl.ID, true)
	assert.ErrorIs(t, err, model.ErrNoQuestions)

	_, err = f.svc.CreateQuestion(f.ctx, f.prof, model.Question{TemplateID: tpl.ID, Prompt: "Go is compiled", CorrectAnswer: "yes"})
	require.NoError(t, err)
	pub, err := f.svc.SetPublished(f.ctx, f.prof, tpl.ID, true)
	require.NoError(t, err)
	assert.True(t, pub.Published)

	f.template(t, c.ID, model.QuestionEssay) // draft

	all, err := f.svc.ListTemplates(f.ctx, f.prof, c.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.ListTemplates(f.ctx, f.stu, c.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
	require.NoError(t, f.svc.Enroll(f.ctx, f.stu, c.ID))
	visible, err := f.svc.ListTemplates(f.ctx, f.stu, c.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, tpl.ID, visible[0].ID)

	_, err = f.svc.GetTemplate(f.ctx, f.stu, all[1].ID)
	assert.ErrorIs(t, err, model.ErrNotFound, "drafts are hidden from students")
}

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name    string
		q       model.Question
		wantErr bool
	}{
		{"choice ok", model.Question{Type: model.QuestionMultipleChoice, Prompt: "p", Options: []string{"a", "b"}, CorrectAnswer: "b"}, false},
		{"choice one option", model.Question{Type: model.QuestionMultipleChoice, Prompt: "p", Options: []string{"a"}, CorrectAnswer: "a"}, true},
		{"choice answer not an option", model.Question{Type: model.QuestionMultipleChoice, Prompt: "p", Options: []string{"a", "b"}, CorrectAnswer: "c"}, true},
		{"tf ok", model.Question{Type: model.QuestionTrueFalse, Prompt: "p", CorrectAnswer: "F"}, false},
		{"tf bad", model.Question{Type: model.QuestionTrueFalse, Prompt: "p", CorrectAnswer: "maybe"}, true},
		{"output ok", model.Question{Type: model.QuestionOutputTracing, Prompt: "p", CorrectAnswer: "42\n"}, false},
		{"output empty", model.Question{Type: model.QuestionOutputTracing, Prompt: "p", CorrectAnswer: " \n"}, true},
		{"essay ok", model.Question{Type: model.QuestionEssay, Prompt: "p"}, false},
		{"no prompt", model.Question{Type: model.QuestionEssay, Prompt: "  "}, true},
		{"bad difficulty", model.Question{Type: model.QuestionEssay, Prompt: "p", Difficulty: "brutal"}, true},
		{"negative points", model.Question{Type: model.QuestionEssay, Prompt: "p", Points: -1}, true},
		{"unknown type", model.Question{Type: "drawing", Prompt: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.q
			err := ValidateQuestion(&q)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, q.Points)
			assert.True(t, q.Difficulty.IsValid())
		})
	}
}

func TestValidateQuestionNormalizes(t *testing.T) {
	q := model.Question{Type: model.QuestionTrueFalse, Prompt: " p ", CorrectAnswer: "Y", Options: []string{"x"}}
	require.NoError(t, ValidateQuestion(&q))
	assert.Equal(t, "true", q.CorrectAnswer)
	assert.Nil(t, q.Options)
	assert.Equal(t, "p", q.Prompt)
	assert.Equal(t, model.DifficultyMedium, q.Difficulty)
	assert.Equal(t, 1.0, q.Points)
}

func TestQuestionCRUD(t *testing.T) {
	f := newFixture(t)
	c := f.course(t)
	tpl := f.template(t, c.ID, model.QuestionMultipleChoice)

	_, err := f.svc.CreateQuestion(f.ctx, f.prof, model.Question{TemplateID: tpl.ID, Type: model.QuestionEssay, Prompt: "p"})
	assert.ErrorIs(t, err, model.ErrValidation, "type must match the template")

	q, err := f.svc.CreateQuestion(f.ctx, f.prof, model.Question{
		TemplateID: tpl.ID, Prompt: "Big-O of append?", Category: "slices",
		Options: []string{"O(1)", "O(n)"}, CorrectAnswer: "O(1)", Points: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, c.ID, q.CourseID)
	assert.Equal(t, []string{"O(1)", "O(n)"}, q.Options)

	_, err = f.svc.CreateQuestion(f.ctx, f.other, model.Question{TemplateID: tpl.ID, Prompt: "x", Options: []string{"a", "b"}, CorrectAnswer: "a"})
	assert.ErrorIs(t, err, model.ErrForbidden)

	q.Prompt = "Amortized cost of append?"
	q.TemplateID = 0
	updated, err := f.svc.UpdateQuestion(f.ctx, f.prof, *q)
	require.NoError(t, err)
	assert.Equal(t, "Amortized cost of append?", updated.Prompt)
	assert.Equal(t, tpl.ID, updated.TemplateID)

	list, err := f.svc.ListQuestions(f.ctx, f.prof, tpl.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = f.svc.ListQuestions(f.ctx, f.stu, tpl.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	require.NoError(t, f.svc.DeleteQuestion(f.ctx, f.prof, q.ID))
	assert.ErrorIs(t, f.svc.DeleteQuestion(f.ctx, f.prof, q.ID), model.ErrNotFound)
}

func TestDeleteQuestionInExamSession(t *testing.T) {
	f := newFixture(t)
	c := f.course(t)
	tpl := f.template(t, c.ID, model.QuestionMultipleChoice)
	used, err := f.svc.CreateQuestion(f.ctx, f.prof, model.Question{
		TemplateID: tpl.ID, Prompt: "len(nil slice)?", Options: []string{"0", "panic"}, CorrectAnswer: "0",
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	sid, err := f.st.CreateExamSession(f.ctx, model.ExamSession{
		TemplateID: tpl.ID, StudentID: f.stu.ID, StartedAt: now, DeadlineAt: now.Add(time.Hour),
	}, []model.Question{*used})
	require.NoError(t, err)

	spare, err := f.svc.CreateQuestion(f.ctx, f.prof, model.Question{
		TemplateID: tpl.ID, Prompt: "cap(nil slice)?", Options: []string{"0", "1"}, CorrectAnswer: "0",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteQuestion(f.ctx, f.prof, used.ID), model.ErrConflict)
	answers, err := f.st.ListAnswers(f.ctx, sid)
	require.NoError(t, err)
	assert.Len(t, answers, 1, "the session keeps its answer row")

	require.NoError(t, f.svc.DeleteQuestion(f.ctx, f.prof, spare.ID))
	list, err := f.svc.ListQuestions(f.ctx, f.prof, tpl.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, used.ID, list[0].ID)
}

const yamlBank = `
- category: loops
  difficulty: easy
  prompt: "for range over a map is ordered"
  correct_answer: "false"
  points: 1
- category: maps
  prompt: "nil maps can be read"
  correct_answer: "true"
`

const jsonBank = `[{"type": "true_false", "prompt": "Go has generics", "correct_answer": "true"}]`

func TestImportBank(t *testing.T) {
	f := newFixture(t)
	c := f.course(t)
	tpl := f.template(t, c.ID, model.QuestionTrueFalse)

	res, err := f.svc.ImportBank(f.ctx, f.prof, tpl.ID, "bank.yaml", []byte(yamlBank))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.False(t, res.Skipped)
	assert.Len(t, res.Hash, 64)

	again, err := f.svc.ImportBank(f.ctx, f.prof, tpl.ID, "renamed.yaml", []byte(yamlBank))
	require.NoError(t, err)
	assert.True(t, again.Skipped, "same content is imported once")

	res, err = f.svc.ImportBank(f.ctx, f.prof, tpl.ID, "bank.json", []byte(jsonBank))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	qs, err := f.svc.ListQuestions(f.ctx, f.prof, tpl.ID)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, model.QuestionTrueFalse, qs[1].Type)
	assert.Equal(t, model.DifficultyMedium, qs[1].Difficulty)

	_, err = f.svc.ImportBank(f.ctx, f.prof, tpl.ID, "bad.json", []byte(`[{"prompt": "x", "correct_answer": "perhaps"}]`))
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.ImportBank(f.ctx, f.prof, tpl.ID, "bad.json", []byte(`[{"bogus": 1}]`))
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.ImportBank(f.ctx, f.stu, tpl.ID, "bank.json", []byte(jsonBank))
	assert.ErrorIs(t, err, model.ErrForbidden)

	qs, _ = f.svc.ListQuestions(f.ctx, f.prof, tpl.ID)
	assert.Len(t, qs, 3, "rejected banks import nothing")
}

func TestProblemsAndSubmissions(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateProblem(f.ctx, f.stu, model.Problem{Slug: "two-sum", Title: "Two Sum", Difficulty: model.DifficultyEasy})
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.CreateProblem(f.ctx, f.prof, model.Problem{Slug: "Two Sum!", Title: "Two Sum", Difficulty: model.DifficultyEasy})
	assert.ErrorIs(t, err, model.ErrValidation)

	p, err := f.svc.CreateProblem(f.ctx, f.prof, model.Problem{Slug: "two-sum", Title: "Two Sum", Difficulty: model.DifficultyEasy, Category: "arrays"})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	_, err = f.svc.CreateProblem(f.ctx, f.prof, model.Problem{Slug: "two-sum", Title: "Again", Difficulty: model.DifficultyEasy})
	assert.ErrorIs(t, err, model.ErrConflict)
	_, err = f.svc.CreateProblem(f.ctx, f.prof, model.Problem{Slug: "lru-cache", Title: "LRU", Difficulty: model.DifficultyHard, Category: "design"})
	require.NoError(t, err)

	_, err = f.svc.RecordSubmission(f.ctx, f.stu, "two-sum", model.ProblemSubmission{Verdict: "great"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.RecordSubmission(f.ctx, f.stu, "missing", model.ProblemSubmission{Verdict: model.VerdictAccepted})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.RecordSubmission(f.ctx, f.stu, "two-sum", model.ProblemSubmission{Code: "x", Verdict: model.VerdictWrongAnswer})
	require.NoError(t, err)
	assert.Zero(t, f.inv.calls)

	sub, err := f.svc.RecordSubmission(f.ctx, f.stu, "two-sum", model.ProblemSubmission{Code: "y", Verdict: model.VerdictAccepted, RuntimeMS: 12})
	require.NoError(t, err)
	assert.Equal(t, "go", sub.Language)
	assert.Equal(t, 1, f.inv.calls)

	_, err = f.svc.RecordSubmission(f.ctx, f.stu, "two-sum", model.ProblemSubmission{Code: "z", Verdict: model.VerdictAccepted})
	require.NoError(t, err)
	assert.Equal(t, 2, f.inv.calls, "a repeat solve can still land inside a challenge window")

	got, err := f.svc.GetProblem(f.ctx, f.stu, "two-sum")
	require.NoError(t, err)
	assert.True(t, got.Solved)

	list, err := f.svc.ListProblems(f.ctx, f.stu, "", "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two-sum", list[0].Slug)
	assert.True(t, list[0].Solved)
	assert.False(t, list[1].Solved)

	hard, err := f.svc.ListProblems(f.ctx, f.stu, model.DifficultyHard, "")
	require.NoError(t, err)
	assert.Len(t, hard, 1)
	_, err = f.svc.ListProblems(f.ctx, f.stu, "brutal", "")
	assert.ErrorIs(t, err, model.ErrValidation)

	subs, err := f.svc.ListSubmissions(f.ctx, f.stu, "two-sum")
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "z", subs[0].Code)
	subs, err = f.svc.ListSubmissions(f.ctx, f.prof, "")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestChallenges(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	p, err := f.svc.CreateProblem(f.ctx, f.prof, model.Problem{Slug: "fizz", Title: "Fizz", Difficulty: model.DifficultyEasy})
	require.NoError(t, err)

	base := model.Challenge{Title: "Sprint", StartsAt: now, EndsAt: now.Add(time.Hour), Problems: []model.ChallengeProblem{{ProblemID: p.ID, Points: 50}}}

	bad := base
	bad.EndsAt = now
	_, err = f.svc.CreateChallenge(f.ctx, f.prof, bad)
	assert.ErrorIs(t, err, model.ErrValidation)
	bad = base
	bad.Problems = []model.ChallengeProblem{{ProblemID: 999, Points: 1}}
	_, err = f.svc.CreateChallenge(f.ctx, f.prof, bad)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.CreateChallenge(f.ctx, f.stu, base)
	assert.ErrorIs(t, err, model.ErrForbidden)

	c, err := f.svc.CreateChallenge(f.ctx, f.prof, base)
	require.NoError(t, err)
	require.NotEmpty(t, c.InviteCode)
	assert.Len(t, c.Problems, 1)
	invite := c.InviteCode

	seen, err := f.svc.GetChallenge(f.ctx, f.stu, c.ID)
	require.NoError(t, err)
	assert.Empty(t, seen.InviteCode)

	assert.ErrorIs(t, f.svc.ChallengeBoardAccess(f.ctx, f.stu, c.ID), model.ErrForbidden)
	_, err = f.svc.JoinChallenge(f.ctx, f.stu, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
	joined, err := f.svc.JoinChallenge(f.ctx, f.stu, invite)
	require.NoError(t, err)
	assert.Equal(t, c.ID, joined.ID)
	assert.NoError(t, f.svc.ChallengeBoardAccess(f.ctx, f.stu, c.ID))
	assert.NoError(t, f.svc.ChallengeBoardAccess(f.ctx, f.prof, c.ID))

	list, err := f.svc.ListChallenges(f.ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, invite, list[0].InviteCode)

	now = now.Add(2 * time.Hour)
	_, err = f.svc.JoinChallenge(f.ctx, f.other, invite)
	assert.ErrorIs(t, err, model.ErrDeadlinePassed)
}

func TestUsers(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListUsers(f.ctx, f.prof)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.CreateUser(f.ctx, f.admin, NewUser{Username: "new", Password: "short"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.CreateUser(f.ctx, f.admin, NewUser{Username: "stu", Password: "longenough"})
	assert.ErrorIs(t, err, model.ErrConflict)

	u, err := f.svc.CreateUser(f.ctx, f.admin, NewUser{Username: "new", Password: "longenough"})
	require.NoError(t, err)
	assert.Equal(t, model.UserRoleStudent, u.Role)
	assert.True(t, u.Active)
	assert.Equal(t, "new", u.DisplayName)

	cli, err := f.svc.CreateUser(f.ctx, nil, NewUser{Username: "ta", Password: "longenough", Role: model.UserRoleProfessor})
	require.NoError(t, err)
	assert.Equal(t, model.UserRoleProfessor, cli.Role)

	toggled, err := f.svc.ToggleUser(f.ctx, f.admin, u.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Active)
	assert.Equal(t, 1, f.inv.calls)

	_, err = f.svc.ToggleUser(f.ctx, f.admin, f.admin.ID)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.ToggleUser(f.ctx, f.admin, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)

	users, err := f.svc.ListUsers(f.ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, users, 6)
}

func TestRepeatSolveRefreshesChallengeBoard(t *testing.T) {
	f := newFixture(t)
	boards := leaderboard.NewService(f.st, cache.NewMemory(), time.Hour)
	f.svc = NewService(f.st, boards)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now.Add(-24 * time.Hour) }

	p, err := f.svc.CreateProblem(f.ctx, f.prof, model.Problem{Slug: "fizz", Title: "Fizz", Difficulty: model.DifficultyEasy})
	require.NoError(t, err)
	_, err = f.svc.RecordSubmission(f.ctx, f.stu, "fizz", model.ProblemSubmission{Code: "a", Verdict: model.VerdictAccepted})
	require.NoError(t, err)

	f.svc.now = func() time.Time { return now }
	c, err := f.svc.CreateChallenge(f.ctx, f.prof, model.Challenge{
		Title: "Sprint", StartsAt: now, EndsAt: now.Add(time.Hour),
		Problems: []model.ChallengeProblem{{ProblemID: p.ID, Points: 50}},
	})
	require.NoError(t, err)
	_, err = f.svc.JoinChallenge(f.ctx, f.stu, c.InviteCode)
	require.NoError(t, err)

	board, err := boards.ChallengeLeaderboard(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, board, "the earlier solve is outside the window")

	f.svc.now = func() time.Time { return now.Add(10 * time.Minute) }
	_, err = f.svc.RecordSubmission(f.ctx, f.stu, "fizz", model.ProblemSubmission{Code: "b", Verdict: model.VerdictAccepted})
	require.NoError(t, err)

	board, err = boards.ChallengeLeaderboard(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "stu", board[0].Username)
	assert.Equal(t, 50.0, board[0].Points)
}
