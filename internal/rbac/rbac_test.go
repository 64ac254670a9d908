package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pavelanni/codedrill/internal/model"
)

func TestCheckerHas(t *testing.T) {
	c := NewChecker(nil)
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{"student", "exam:take", true},
		{"student", "exam:grade", false},
		{"student", "template:create", false},
		{"professor", "template:create", true},
		{"professor", "question:import", true},
		{"professor", "exam:take", false},
		{"admin", "users:manage", true},
		{"ghost", "course:view", false},
	}
	for _, tt := range tests {
		t.Run(tt.role+" "+tt.perm, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Has(tt.role, tt.perm))
		})
	}
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := Require("exam:grade")(ok)

	tests := []struct {
		name string
		user *model.User
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"student", &model.User{Role: model.UserRoleStudent, Active: true}, http.StatusForbidden},
		{"professor", &model.User{Role: model.UserRoleProfessor, Active: true}, http.StatusNoContent},
		{"inactive professor", &model.User{Role: model.UserRoleProfessor}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != nil {
				req = req.WithContext(model.ContextWithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCan(t *testing.T) {
	assert.False(t, Can(nil, "course:view"))
	assert.True(t, Can(&model.User{Role: model.UserRoleAdmin, Active: true}, "anything"))
}

func TestCanManageCourse(t *testing.T) {
	course := model.Course{ID: 1, ProfessorID: 7}
	tests := []struct {
		name string
		user *model.User
		want bool
	}{
		{"nil", nil, false},
		{"owner", &model.User{ID: 7, Role: model.UserRoleProfessor, Active: true}, true},
		{"other professor", &model.User{ID: 8, Role: model.UserRoleProfessor, Active: true}, false},
		{"admin", &model.User{ID: 1, Role: model.UserRoleAdmin, Active: true}, true},
		{"student", &model.User{ID: 7, Role: model.UserRoleStudent, Active: true}, false},
		{"inactive owner", &model.User{ID: 7, Role: model.UserRoleProfessor}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanManageCourse(tt.user, course))
		})
	}
}
