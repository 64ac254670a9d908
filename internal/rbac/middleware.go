package rbac

import (
	"net/http"

	"github.com/pavelanni/codedrill/internal/model"
)

var defaultChecker = NewChecker(nil)

// Can reports whether u holds perm under the default policy.
func Can(u *model.User, perm string) bool {
	return u != nil && u.Active && defaultChecker.Has(string(u.Role), perm)
}

// Require rejects requests whose user lacks perm. It must run after the
// authentication middleware has put the user in the context.
func Require(perm string) func(http.Handler) http.Handler {
	return RequireAny(perm)
}

// RequireAny rejects requests whose user holds none of perms.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := model.UserFromContext(r.Context())
			if u == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !u.Active || !defaultChecker.Any(string(u.Role), perms...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CanManageCourse reports whether u may edit a course's content and grade
// its exams: admins always, professors only for their own courses.
func CanManageCourse(u *model.User, c model.Course) bool {
	if u == nil || !u.Active {
		return false
	}
	switch u.Role {
	case model.UserRoleAdmin:
		return true
	case model.UserRoleProfessor:
		return c.ProfessorID == u.ID
	}
	return false
}
