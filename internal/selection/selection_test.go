package selection

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/codedrill/internal/model"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func q(id int64, t model.QuestionType) model.Question {
	return model.Question{ID: id, Type: t, Prompt: "q"}
}

func ids(qs []model.Question) []int64 {
	out := make([]int64, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

func TestBuildExposure(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	got := BuildExposure([]model.QuestionAttempt{
		{QuestionID: 1, Correct: false, CreatedAt: t0},
		{QuestionID: 1, Correct: true, CreatedAt: t0.Add(time.Hour)},
		{QuestionID: 1, Correct: false, CreatedAt: t0.Add(-time.Hour)},
		{QuestionID: 2, Correct: true, CreatedAt: t0},
	})

	want := map[int64]Exposure{
		1: {Attempts: 3, Incorrect: 2, LastSeen: t0.Add(time.Hour)},
		2: {Attempts: 1, Incorrect: 0, LastSeen: t0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildExposure mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectPracticeQuestionsPriority(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	candidates := []model.Question{
		q(1, model.QuestionEssay),
		q(2, model.QuestionEssay),
		q(3, model.QuestionEssay),
		q(4, model.QuestionEssay),
		q(5, model.QuestionEssay),
	}
	history := map[int64]Exposure{
		1: {Attempts: 2, Incorrect: 0, LastSeen: now.Add(-time.Hour)},
		2: {Attempts: 4, Incorrect: 3, LastSeen: now},
		3: {Attempts: 2, Incorrect: 0, LastSeen: now.Add(-48 * time.Hour)},
		// 4 and 5 never seen
		99: {Attempts: 1, Incorrect: 1, LastSeen: now},
	}

	got := SelectPracticeQuestions(candidates, history, 5, newRand())
	require.Len(t, got, 5)

	// Never-seen questions lead, in random order.
	assert.ElementsMatch(t, []int64{4, 5}, ids(got[:2]))
	// Then most incorrect, then the oldest seen.
	assert.Equal(t, []int64{2, 3, 1}, ids(got[2:]))
}

func TestSelectPracticeQuestionsCount(t *testing.T) {
	candidates := []model.Question{q(1, model.QuestionEssay), q(2, model.QuestionEssay), q(3, model.QuestionEssay)}

	tests := []struct {
		name  string
		count int
		want  int
	}{
		{"zero", 0, 0},
		{"negative", -3, 0},
		{"fewer than pool", 2, 2},
		{"exact", 3, 3},
		{"more than pool", 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPracticeQuestions(candidates, nil, tt.count, newRand())
			require.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSelectPracticeQuestionsEmptyPool(t *testing.T) {
	got := SelectPracticeQuestions(nil, nil, 5, newRand())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSelectPracticeQuestionsDeterministicAndNonMutating(t *testing.T) {
	candidates := []model.Question{}
	for i := int64(1); i <= 20; i++ {
		candidates = append(candidates, q(i, model.QuestionTrueFalse))
	}
	before := ids(candidates)

	a := SelectPracticeQuestions(candidates, nil, 10, rand.New(rand.NewPCG(7, 7)))
	b := SelectPracticeQuestions(candidates, nil, 10, rand.New(rand.NewPCG(7, 7)))

	assert.Equal(t, ids(a), ids(b))
	assert.Equal(t, before, ids(candidates))
}

func TestSelectPracticeQuestionsDeduplicates(t *testing.T) {
	candidates := []model.Question{q(1, model.QuestionEssay), q(1, model.QuestionEssay), q(2, model.QuestionEssay)}
	got := SelectPracticeQuestions(candidates, nil, 5, newRand())
	assert.ElementsMatch(t, []int64{1, 2}, ids(got))
}

func TestSelectMixedQuestionsRoundRobin(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	candidates := []model.Question{
		q(1, model.QuestionTrueFalse),
		q(2, model.QuestionTrueFalse),
		q(3, model.QuestionTrueFalse),
		q(4, model.QuestionEssay),
		q(5, model.QuestionCodeAnalysis),
		q(6, model.QuestionCodeAnalysis),
	}
	history := map[int64]Exposure{
		5: {Attempts: 1, Incorrect: 1, LastSeen: now},
		1: {Attempts: 1, Incorrect: 0, LastSeen: now},
		2: {Attempts: 3, Incorrect: 2, LastSeen: now},
	}

	got := SelectMixedQuestions(candidates, history, 5, newRand())

	// Round one: best of each type in canonical order.
	// code_analysis: 6 (unseen) before 5; essay: 4; true_false: 3 (unseen).
	// Round two: code_analysis 5, then true_false 2 (more incorrect than 1).
	assert.Equal(t, []int64{6, 4, 3, 5, 2}, ids(got))
}

func TestSelectMixedQuestionsExhaustsBuckets(t *testing.T) {
	candidates := []model.Question{
		q(1, model.QuestionTrueFalse),
		q(2, model.QuestionEssay),
	}
	got := SelectMixedQuestions(candidates, nil, 10, newRand())
	assert.Equal(t, []int64{2, 1}, ids(got))

	assert.Empty(t, SelectMixedQuestions(candidates, nil, 0, newRand()))
	assert.NotNil(t, SelectMixedQuestions(nil, nil, 3, newRand()))
}
