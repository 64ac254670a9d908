package leaderboard

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/codedrill/internal/model"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func solve(user int64, name string, problem int64, points float64, minutes int) model.Solve {
	return model.Solve{UserID: user, Username: name, ProblemID: problem, Points: points, At: t0.Add(time.Duration(minutes) * time.Minute)}
}

func TestDifficultyPoints(t *testing.T) {
	assert.Equal(t, 10.0, DifficultyPoints(model.DifficultyEasy))
	assert.Equal(t, 20.0, DifficultyPoints(model.DifficultyMedium))
	assert.Equal(t, 30.0, DifficultyPoints(model.DifficultyHard))
	assert.Zero(t, DifficultyPoints("legendary"))
}

func TestRankOrderAndTies(t *testing.T) {
	solves := []model.Solve{
		solve(1, "ann", 1, 30, 5),
		solve(2, "bob", 2, 20, 1),
		solve(2, "bob", 3, 10, 2),
		solve(3, "cat", 1, 30, 9),
		solve(4, "dan", 2, 20, 3),
	}
	got := Rank(solves)

	type row struct {
		Rank   int
		User   string
		Points float64
		Solved int
	}
	var rows []row
	for _, e := range got {
		rows = append(rows, row{e.Rank, e.Username, e.Points, e.Solved})
	}
	// bob has 30 from two solves and beats ann and cat on solved count.
	// ann and cat tie on points and solves; ann solved earlier so sorts first.
	want := []row{
		{1, "bob", 30, 2},
		{2, "ann", 30, 1},
		{2, "cat", 30, 1},
		{4, "dan", 20, 1},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Rank() mismatch (-want +got):\n%s", diff)
	}
}

func TestRankCountsFirstAcceptanceOnly(t *testing.T) {
	got := Rank([]model.Solve{
		solve(1, "ann", 1, 10, 7),
		solve(1, "ann", 1, 10, 2),
		solve(1, "ann", 1, 10, 5),
	})
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Points)
	assert.Equal(t, 1, got[0].Solved)
	assert.True(t, t0.Add(2*time.Minute).Equal(*got[0].LastSolveAt))
}

func TestRankEmpty(t *testing.T) {
	got := Rank(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFind(t *testing.T) {
	entries := Rank([]model.Solve{solve(1, "ann", 1, 10, 1), solve(2, "bob", 2, 20, 1)})
	e := Find(entries, 1)
	require.NotNil(t, e)
	assert.Equal(t, 2, e.Rank)
	assert.Nil(t, Find(entries, 3))
}
