package leaderboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pavelanni/codedrill/internal/cache"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/store"
)

const keyPrefix = "leaderboard:"

// Service serves rankings and skill statistics. Boards are cached until
// the TTL runs out or Invalidate is called.
type Service struct {
	store *store.Store
	cache cache.Cache
	ttl   time.Duration
}

// NewService returns a Service. A nil cache means an in-memory one.
func NewService(st *store.Store, c cache.Cache, ttl time.Duration) *Service {
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{store: st, cache: c, ttl: ttl}
}

// Invalidate drops every cached board.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.DeletePrefix(ctx, keyPrefix)
}

// cached returns the board under key, building and storing it on a miss.
// Cache failures are logged and the board is built from the database.
func (s *Service) cached(ctx context.Context, key string, build func() ([]model.LeaderboardEntry, error)) ([]model.LeaderboardEntry, error) {
	if b, err := s.cache.Get(ctx, key); err == nil {
		var entries []model.LeaderboardEntry
		if err := json.Unmarshal(b, &entries); err == nil {
			return entries, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("leaderboard cache read failed", "key", key, "error", err)
	}

	entries, err := build()
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			slog.Warn("leaderboard cache write failed", "key", key, "error", err)
		}
	}
	return entries, nil
}

func (s *Service) global(ctx context.Context) ([]model.LeaderboardEntry, error) {
	return s.cached(ctx, keyPrefix+"global", func() ([]model.LeaderboardEntry, error) {
		acc, err := s.store.ListAcceptances(ctx)
		if err != nil {
			return nil, fmt.Errorf("list acceptances: %w", err)
		}
		solves := make([]model.Solve, len(acc))
		for i, a := range acc {
			solves[i] = toSolve(a, DifficultyPoints(a.Difficulty))
		}
		return Rank(solves), nil
	})
}

func toSolve(a store.Acceptance, points float64) model.Solve {
	return model.Solve{
		UserID:      a.UserID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		ProblemID:   a.ProblemID,
		Points:      points,
		At:          a.At,
	}
}

// Leaderboard returns the top limit entries. A limit of zero or less
// returns the whole board.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	entries, err := s.global(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// UserRank returns the user's entry, or nil if they have no solves.
func (s *Service) UserRank(ctx context.Context, userID int64) (*model.LeaderboardEntry, error) {
	entries, err := s.global(ctx)
	if err != nil {
		return nil, err
	}
	return Find(entries, userID), nil
}

// ChallengeLeaderboard ranks participants by the challenge's own points,
// counting only solves inside its time window.
func (s *Service) ChallengeLeaderboard(ctx context.Context, challengeID int64) ([]model.LeaderboardEntry, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.cached(ctx, fmt.Sprintf("%schallenge:%d", keyPrefix, challengeID), func() ([]model.LeaderboardEntry, error) {
		points := make(map[int64]float64, len(c.Problems))
		for _, p := range c.Problems {
			points[p.ProblemID] = p.Points
		}
		acc, err := s.store.ListChallengeAcceptances(ctx, challengeID)
		if err != nil {
			return nil, fmt.Errorf("list challenge acceptances: %w", err)
		}
		var solves []model.Solve
		for _, a := range acc {
			if a.At.Before(c.StartsAt) || a.At.After(c.EndsAt) {
				continue
			}
			solves = append(solves, toSolve(a, points[a.ProblemID]))
		}
		return Rank(solves), nil
	})
}

func withAccuracy(stats []model.CategoryStat) []model.CategoryStat {
	for i := range stats {
		if stats[i].Attempts > 0 {
			stats[i].Accuracy = float64(stats[i].Correct) / float64(stats[i].Attempts)
		}
	}
	return stats
}

// WeakCategories returns categories the user has not mastered, weakest
// first. Categories with fewer than minAttempts attempts are skipped.
func (s *Service) WeakCategories(ctx context.Context, userID int64, minAttempts, limit int) ([]model.CategoryStat, error) {
	stats, err := s.store.CategoryStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	weak := make([]model.CategoryStat, 0, len(stats))
	for _, c := range withAccuracy(stats) {
		if c.Attempts >= minAttempts && c.Accuracy < 1 {
			weak = append(weak, c)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool {
		a, b := weak[i], weak[j]
		if a.Accuracy != b.Accuracy {
			return a.Accuracy < b.Accuracy
		}
		if a.Attempts != b.Attempts {
			return a.Attempts > b.Attempts
		}
		return a.Category < b.Category
	})
	if limit > 0 && len(weak) > limit {
		weak = weak[:limit]
	}
	return weak, nil
}

// Skills reports question accuracy per category and distinct problems
// solved per problem category.
func (s *Service) Skills(ctx context.Context, userID int64) (*model.SkillReport, error) {
	stats, err := s.store.CategoryStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	acc, err := s.store.ListUserAcceptances(ctx, userID)
	if err != nil {
		return nil, err
	}
	solved := make(map[string]int)
	seen := make(map[int64]bool)
	for _, a := range acc {
		if seen[a.ProblemID] {
			continue
		}
		seen[a.ProblemID] = true
		solved[a.Category]++
	}
	if stats == nil {
		stats = []model.CategoryStat{}
	}
	return &model.SkillReport{Questions: withAccuracy(stats), ProblemsSolved: solved}, nil
}

// UserStats builds the dashboard summary for one user.
func (s *Service) UserStats(ctx context.Context, userID int64) (*model.UserStats, error) {
	acc, err := s.store.ListUserAcceptances(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &model.UserStats{ProblemsSolved: make(map[model.Difficulty]int)}
	seen := make(map[int64]bool)
	for _, a := range acc {
		if !seen[a.ProblemID] {
			seen[a.ProblemID] = true
			out.ProblemsSolved[a.Difficulty]++
		}
	}

	if out.PracticeCompleted, err = s.store.CountCompletedPractice(ctx, userID); err != nil {
		return nil, err
	}

	sessions, err := s.store.ListStudentSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, sess := range sessions {
		if sess.Status != model.StatusGraded || sess.MaxScore <= 0 {
			continue
		}
		out.ExamsGraded++
		total += sess.Score / sess.MaxScore * 100
	}
	if out.ExamsGraded > 0 {
		out.AverageExamPercent = total / float64(out.ExamsGraded)
	}
	return out, nil
}
