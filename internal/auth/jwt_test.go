package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/codedrill/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	s := NewService("secret", time.Hour)
	u := &model.User{ID: 42, Role: model.UserRoleProfessor}

	tok, exp, err := s.IssueToken(u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, model.UserRoleProfessor, claims.Role)
	assert.NotEmpty(t, claims.ID)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestParseRejects(t *testing.T) {
	s := NewService("secret", time.Hour)
	tok, _, err := s.IssueToken(&model.User{ID: 1, Role: model.UserRoleStudent})
	require.NoError(t, err)

	_, err = NewService("other", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	_, err = s.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	late := NewService("secret", time.Hour)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = late.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}
