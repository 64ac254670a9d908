package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/codedrill/internal/cache"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/store"
)

type fixture struct {
	st   *store.Store
	svc  *Service
	ann  int64
	bob  int64
	prof int64
	easy int64
	hard int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.New(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{st: st, svc: NewService(st, cache.NewMemory(), time.Hour)}
	mk := func(name string, role model.UserRole) int64 {
		id, err := st.CreateUser(ctx, model.User{Username: name, DisplayName: name, PasswordHash: "x", Role: role, Active: true})
		require.NoError(t, err)
		return id
	}
	f.ann = mk("ann", model.UserRoleStudent)
	f.bob = mk("bob", model.UserRoleStudent)
	f.prof = mk("prof", model.UserRoleProfessor)
	f.easy, err = st.CreateProblem(ctx, model.Problem{Slug: "easy", Title: "Easy", Difficulty: model.DifficultyEasy, Category: "arrays"})
	require.NoError(t, err)
	f.hard, err = st.CreateProblem(ctx, model.Problem{Slug: "hard", Title: "Hard", Difficulty: model.DifficultyHard, Category: "graphs"})
	require.NoError(t, err)
	return f
}

func (f *fixture) accept(t *testing.T, user, problem int64, at time.Time) {
	t.Helper()
	_, err := f.st.CreateSubmission(context.Background(), model.ProblemSubmission{
		ProblemID: problem, UserID: user, Language: "go", Code: "x", Verdict: model.VerdictAccepted, CreatedAt: at,
	})
	require.NoError(t, err)
}

func TestLeaderboardCaching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	f.accept(t, f.ann, f.easy, now)
	f.accept(t, f.ann, f.easy, now.Add(time.Minute))

	board, err := f.svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 10.0, board[0].Points, "repeat acceptances count once")

	f.accept(t, f.bob, f.hard, now)
	board, _ = f.svc.Leaderboard(ctx, 10)
	assert.Len(t, board, 1, "cached board is served until invalidated")

	require.NoError(t, f.svc.Invalidate(ctx))
	board, err = f.svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].Username)
	assert.Equal(t, 30.0, board[0].Points)

	top, _ := f.svc.Leaderboard(ctx, 1)
	assert.Len(t, top, 1)

	e, err := f.svc.UserRank(ctx, f.ann)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 2, e.Rank)

	e, err = f.svc.UserRank(ctx, f.prof)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestChallengeLeaderboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)
	cid, err := f.st.CreateChallenge(ctx, model.Challenge{
		Title: "Sprint", InviteCode: "sprint", StartsAt: start, EndsAt: start.Add(2 * time.Hour), CreatedBy: f.prof,
		Problems: []model.ChallengeProblem{{ProblemID: f.easy, Points: 100}, {ProblemID: f.hard, Points: 250}},
	})
	require.NoError(t, err)
	require.NoError(t, f.st.JoinChallenge(ctx, cid, f.ann))
	require.NoError(t, f.st.JoinChallenge(ctx, cid, f.bob))

	f.accept(t, f.ann, f.easy, start.Add(-time.Minute)) // before the window
	f.accept(t, f.ann, f.hard, start.Add(10*time.Minute))
	f.accept(t, f.bob, f.easy, start.Add(5*time.Minute))
	f.accept(t, f.prof, f.hard, start.Add(time.Minute)) // not a participant

	board, err := f.svc.ChallengeLeaderboard(ctx, cid)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "ann", board[0].Username)
	assert.Equal(t, 250.0, board[0].Points)
	assert.Equal(t, 1, board[0].Solved)
	assert.Equal(t, "bob", board[1].Username)
	assert.Equal(t, 100.0, board[1].Points)

	_, err = f.svc.ChallengeLeaderboard(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWeakCategoriesAndSkills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tplCourse, err := f.st.CreateCourse(ctx, model.Course{Code: "C", Title: "C", ProfessorID: f.prof})
	require.NoError(t, err)
	tpl, err := f.st.CreateTemplate(ctx, model.ExamTemplate{CourseID: tplCourse, Title: "T", QuestionType: model.QuestionTrueFalse, CreatedBy: f.prof})
	require.NoError(t, err)
	q := func(cat string) int64 {
		id, err := f.st.CreateQuestion(ctx, model.Question{TemplateID: tpl, Type: model.QuestionTrueFalse, Category: cat, Prompt: "p", CorrectAnswer: "true", Points: 1})
		require.NoError(t, err)
		return id
	}
	loops, maps, ptrs := q("loops"), q("maps"), q("pointers")
	record := func(qid int64, results ...bool) {
		for _, ok := range results {
			require.NoError(t, f.st.RecordAttempt(ctx, model.QuestionAttempt{UserID: f.ann, QuestionID: qid, Correct: ok, Source: model.SourcePractice}))
		}
	}
	record(loops, true, false, false, true) // 50% over 4
	record(maps, false, true)               // 50% over 2
	record(ptrs, true, true, true)          // mastered

	weak, err := f.svc.WeakCategories(ctx, f.ann, 1, 10)
	require.NoError(t, err)
	require.Len(t, weak, 2)
	assert.Equal(t, "loops", weak[0].Category, "equal accuracy: more attempts first")
	assert.Equal(t, "maps", weak[1].Category)
	assert.Equal(t, 0.5, weak[0].Accuracy)

	weak, _ = f.svc.WeakCategories(ctx, f.ann, 3, 10)
	assert.Len(t, weak, 1)
	weak, _ = f.svc.WeakCategories(ctx, f.ann, 1, 1)
	assert.Len(t, weak, 1)

	f.accept(t, f.ann, f.easy, time.Now().UTC())
	f.accept(t, f.ann, f.easy, time.Now().UTC())
	rep, err := f.svc.Skills(ctx, f.ann)
	require.NoError(t, err)
	assert.Len(t, rep.Questions, 3)
	assert.Equal(t, map[string]int{"arrays": 1}, rep.ProblemsSolved)
}

func TestUserStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t, f.ann, f.easy, time.Now().UTC())
	f.accept(t, f.ann, f.hard, time.Now().UTC())
	f.accept(t, f.ann, f.hard, time.Now().UTC())

	st, err := f.svc.UserStats(ctx, f.ann)
	require.NoError(t, err)
	assert.Equal(t, map[model.Difficulty]int{model.DifficultyEasy: 1, model.DifficultyHard: 1}, st.ProblemsSolved)
	assert.Zero(t, st.ExamsGraded)
	assert.Zero(t, st.AverageExamPercent)
}
