package leaderboard

import (
	"sort"

	"github.com/pavelanni/codedrill/internal/model"
)

// DifficultyPoints is the score a solved problem is worth on the global board.
func DifficultyPoints(d model.Difficulty) float64 {
	switch d {
	case model.DifficultyEasy:
		return 10
	case model.DifficultyMedium:
		return 20
	case model.DifficultyHard:
		return 30
	}
	return 0
}

// Rank aggregates solves into a ranked board. Only the first acceptance of a
// problem counts. Ties on points and solved count share a rank, and the rank
// after a tie skips ahead (1, 2, 2, 4).
func Rank(solves []model.Solve) []model.LeaderboardEntry {
	type key struct{ user, problem int64 }
	first := make(map[key]model.Solve)
	for _, s := range solves {
		k := key{s.UserID, s.ProblemID}
		if prev, ok := first[k]; !ok || s.At.Before(prev.At) {
			first[k] = s
		}
	}

	byUser := make(map[int64]*model.LeaderboardEntry)
	for _, s := range first {
		e, ok := byUser[s.UserID]
		if !ok {
			e = &model.LeaderboardEntry{UserID: s.UserID, Username: s.Username, DisplayName: s.DisplayName}
			byUser[s.UserID] = e
		}
		e.Points += s.Points
		e.Solved++
		if e.LastSolveAt == nil || s.At.After(*e.LastSolveAt) {
			at := s.At
			e.LastSolveAt = &at
		}
	}

	entries := make([]model.LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Solved != b.Solved {
			return a.Solved > b.Solved
		}
		if !a.LastSolveAt.Equal(*b.LastSolveAt) {
			return a.LastSolveAt.Before(*b.LastSolveAt)
		}
		return a.Username < b.Username
	})

	for i := range entries {
		if i > 0 && entries[i].Points == entries[i-1].Points && entries[i].Solved == entries[i-1].Solved {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	return entries
}

// Find returns the entry for userID, or nil when the user has no solves.
func Find(entries []model.LeaderboardEntry, userID int64) *model.LeaderboardEntry {
	for i := range entries {
		if entries[i].UserID == userID {
			e := entries[i]
			return &e
		}
	}
	return nil
}
