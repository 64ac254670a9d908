package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/codedrill/internal/model"
)

const minPasswordLen = 8

// NewUser is the input for CreateUser.
type NewUser struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
}

// HashPassword returns the bcrypt hash stored for a password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", invalid("password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context, u *model.User) ([]model.User, error) {
	if err := permit(u, "user:manage"); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

// CreateUser adds an active account. It is also used by the CLI, which
// passes a nil caller.
func (s *Service) CreateUser(ctx context.Context, u *model.User, nu NewUser) (*model.User, error) {
	if u != nil {
		if err := permit(u, "user:manage"); err != nil {
			return nil, err
		}
	}
	nu.Username = strings.TrimSpace(nu.Username)
	if nu.Username == "" {
		return nil, invalid("username is required")
	}
	if nu.Role == "" {
		nu.Role = model.UserRoleStudent
	}
	if !nu.Role.IsValid() {
		return nil, invalid("unknown role %q", nu.Role)
	}
	if nu.DisplayName == "" {
		nu.DisplayName = nu.Username
	}
	existing, err := s.store.GetUserByUsername(ctx, nu.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("user %q: %w", nu.Username, model.ErrConflict)
	}
	hash, err := HashPassword(nu.Password)
	if err != nil {
		return nil, err
	}
	id, err := s.store.CreateUser(ctx, model.User{
		Username:     nu.Username,
		DisplayName:  nu.DisplayName,
		Email:        strings.TrimSpace(nu.Email),
		PasswordHash: hash,
		Role:         nu.Role,
		Active:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	created, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ToggleUser activates or deactivates an account. Admins cannot lock
// themselves out.
func (s *Service) ToggleUser(ctx context.Context, u *model.User, id int64) (*model.User, error) {
	if err := permit(u, "user:manage"); err != nil {
		return nil, err
	}
	if id == u.ID {
		return nil, invalid("cannot deactivate your own account")
	}
	if err := s.store.ToggleUserActive(ctx, id); err != nil {
		return nil, notFound(err)
	}
	target, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, model.ErrNotFound
	}
	slog.Info("toggled user", "id", id, "active", target.Active, "by", u.Username)
	// Deactivated users must drop out of the rankings.
	if s.rankers != nil {
		if err := s.rankers.Invalidate(ctx); err != nil {
			slog.Warn("failed to invalidate leaderboard", "error", err)
		}
	}
	return target, nil
}
