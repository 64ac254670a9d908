package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/rbac"
	"github.com/pavelanni/codedrill/internal/store"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// CreateProblem adds a coding problem to the catalogue.
func (s *Service) CreateProblem(ctx context.Context, u *model.User, p model.Problem) (*model.Problem, error) {
	if err := permit(u, "problem:create"); err != nil {
		return nil, err
	}
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
	p.Title = strings.TrimSpace(p.Title)
	switch {
	case !slugRe.MatchString(p.Slug):
		return nil, invalid("slug must be lowercase words joined by dashes")
	case p.Title == "":
		return nil, invalid("title is required")
	case !p.Difficulty.IsValid():
		return nil, invalid("unknown difficulty %q", p.Difficulty)
	}
	if _, err := s.store.GetProblemBySlug(ctx, p.Slug, 0); err == nil {
		return nil, fmt.Errorf("problem %q: %w", p.Slug, model.ErrConflict)
	} else if err = notFound(err); err != model.ErrNotFound {
		return nil, err
	}
	id, err := s.store.CreateProblem(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create problem: %w", err)
	}
	p.ID = id
	slog.Info("created problem", "id", id, "slug", p.Slug, "difficulty", p.Difficulty)
	return s.GetProblem(ctx, u, p.Slug)
}

// ListProblems returns problems with the caller's solved flag set.
func (s *Service) ListProblems(ctx context.Context, u *model.User, difficulty model.Difficulty, category string) ([]model.Problem, error) {
	if err := permit(u, "problem:view"); err != nil {
		return nil, err
	}
	if difficulty != "" && !difficulty.IsValid() {
		return nil, invalid("unknown difficulty %q", difficulty)
	}
	return s.store.ListProblems(ctx, store.ProblemFilter{Difficulty: difficulty, Category: category, UserID: u.ID})
}

// GetProblem returns a problem by slug.
func (s *Service) GetProblem(ctx context.Context, u *model.User, slug string) (*model.Problem, error) {
	if err := permit(u, "problem:view"); err != nil {
		return nil, err
	}
	p, err := s.store.GetProblemBySlug(ctx, slug, u.ID)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// RecordSubmission stores a verdict produced by the external runner for
// the caller's attempt. An accepted verdict refreshes the rankings.
func (s *Service) RecordSubmission(ctx context.Context, u *model.User, slug string, sub model.ProblemSubmission) (*model.ProblemSubmission, error) {
	if err := permit(u, "problem:submit"); err != nil {
		return nil, err
	}
	if !sub.Verdict.IsValid() {
		return nil, invalid("unknown verdict %q", sub.Verdict)
	}
	if sub.RuntimeMS < 0 {
		return nil, invalid("runtime must not be negative")
	}
	p, err := s.store.GetProblemBySlug(ctx, slug, u.ID)
	if err != nil {
		return nil, notFound(err)
	}
	sub.ProblemID = p.ID
	sub.UserID = u.ID
	sub.CreatedAt = s.now()
	if sub.Language == "" {
		sub.Language = "go"
	}
	id, err := s.store.CreateSubmission(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	sub.ID = id

	if sub.Verdict == model.VerdictAccepted && s.rankers != nil {
		if err := s.rankers.Invalidate(ctx); err != nil {
			slog.Warn("failed to invalidate leaderboard", "error", err)
		}
	}
	slog.Debug("recorded submission", "problem", slug, "user_id", u.ID, "verdict", sub.Verdict)
	return &sub, nil
}

// ListSubmissions returns the caller's submissions, optionally for a single
// problem slug.
func (s *Service) ListSubmissions(ctx context.Context, u *model.User, slug string) ([]model.ProblemSubmission, error) {
	if err := permit(u, "problem:view"); err != nil {
		return nil, err
	}
	var problemID int64
	if slug != "" {
		p, err := s.store.GetProblemBySlug(ctx, slug, u.ID)
		if err != nil {
			return nil, notFound(err)
		}
		problemID = p.ID
	}
	return s.store.ListSubmissions(ctx, u.ID, problemID)
}

// CreateChallenge schedules a challenge over existing problems and issues
// its invite code.
func (s *Service) CreateChallenge(ctx context.Context, u *model.User, c model.Challenge) (*model.Challenge, error) {
	if err := permit(u, "challenge:create"); err != nil {
		return nil, err
	}
	c.Title = strings.TrimSpace(c.Title)
	switch {
	case c.Title == "":
		return nil, invalid("title is required")
	case !c.EndsAt.After(c.StartsAt):
		return nil, invalid("challenge must end after it starts")
	case len(c.Problems) == 0:
		return nil, invalid("challenge needs at least one problem")
	}
	seen := make(map[int64]bool, len(c.Problems))
	for _, p := range c.Problems {
		if p.Points <= 0 {
			return nil, invalid("problem %d: points must be positive", p.ProblemID)
		}
		if seen[p.ProblemID] {
			return nil, invalid("problem %d listed twice", p.ProblemID)
		}
		seen[p.ProblemID] = true
		if _, err := s.store.GetProblem(ctx, p.ProblemID); err != nil {
			if err = notFound(err); err == model.ErrNotFound {
				return nil, invalid("problem %d does not exist", p.ProblemID)
			}
			return nil, err
		}
	}
	c.InviteCode = uuid.NewString()
	c.CreatedBy = u.ID
	id, err := s.store.CreateChallenge(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	slog.Info("created challenge", "id", id, "title", c.Title, "problems", len(c.Problems))
	return s.GetChallenge(ctx, u, id)
}

// GetChallenge returns a challenge. The invite code is only shown to its
// creator and admins.
func (s *Service) GetChallenge(ctx context.Context, u *model.User, id int64) (*model.Challenge, error) {
	if err := permit(u, "challenge:view"); err != nil {
		return nil, err
	}
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	redactInvite(u, &c)
	return &c, nil
}

func redactInvite(u *model.User, c *model.Challenge) {
	if u.Role != model.UserRoleAdmin && c.CreatedBy != u.ID {
		c.InviteCode = ""
	}
}

// ListChallenges returns every challenge, newest first.
func (s *Service) ListChallenges(ctx context.Context, u *model.User) ([]model.Challenge, error) {
	if err := permit(u, "challenge:view"); err != nil {
		return nil, err
	}
	cs, err := s.store.ListChallenges(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cs {
		redactInvite(u, &cs[i])
	}
	return cs, nil
}

// JoinChallenge enrolls the caller in the challenge behind an invite code.
// A finished challenge cannot be joined.
func (s *Service) JoinChallenge(ctx context.Context, u *model.User, invite string) (*model.Challenge, error) {
	if err := permit(u, "challenge:join"); err != nil {
		return nil, err
	}
	c, err := s.store.GetChallengeByInvite(ctx, strings.TrimSpace(invite))
	if err != nil {
		return nil, notFound(err)
	}
	if s.now().After(c.EndsAt) {
		return nil, model.ErrDeadlinePassed
	}
	if err := s.store.JoinChallenge(ctx, c.ID, u.ID); err != nil {
		return nil, fmt.Errorf("join challenge: %w", err)
	}
	redactInvite(u, &c)
	return &c, nil
}

// ChallengeBoardAccess returns nil when u may see a challenge's ranking:
// participants, the creator and admins.
func (s *Service) ChallengeBoardAccess(ctx context.Context, u *model.User, id int64) error {
	c, err := s.GetChallenge(ctx, u, id)
	if err != nil {
		return err
	}
	if u.Role == model.UserRoleAdmin || c.CreatedBy == u.ID || rbac.Can(u, "challenge:manage") {
		return nil
	}
	ok, err := s.store.IsParticipant(ctx, id, u.ID)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrForbidden
	}
	return nil
}
