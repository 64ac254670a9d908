package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/codedrill/internal/auth"
	"github.com/pavelanni/codedrill/internal/cache"
	"github.com/pavelanni/codedrill/internal/catalog"
	"github.com/pavelanni/codedrill/internal/exam"
	"github.com/pavelanni/codedrill/internal/i18n"
	"github.com/pavelanni/codedrill/internal/leaderboard"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/practice"
	"github.com/pavelanni/codedrill/internal/store"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

const testPassword = "correct-horse"

type testServer struct {
	*httptest.Server
	store *store.Store
	users map[string]*model.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.New(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	ctx := context.Background()
	users := make(map[string]*model.User)
	for _, u := range []model.User{
		{Username: "admin", Role: model.UserRoleAdmin, Active: true},
		{Username: "prof", Role: model.UserRoleProfessor, Active: true},
		{Username: "stu", Role: model.UserRoleStudent, Active: true},
		{Username: "gone", Role: model.UserRoleStudent, Active: false},
	} {
		u.DisplayName = strings.ToUpper(u.Username)
		u.PasswordHash = string(hash)
		id, err := st.CreateUser(ctx, u)
		require.NoError(t, err)
		u.ID = id
		users[u.Username] = &u
	}

	board := leaderboard.NewService(st, cache.NewMemory(), time.Minute)
	h := New(Deps{
		Store:       st,
		Catalog:     catalog.NewService(st, board),
		Exams:       exam.NewService(st, exam.Options{}),
		Practice:    practice.NewService(st, practice.Options{}),
		Leaderboard: board,
		Tokens:      auth.NewService("test-secret", time.Hour),
	}, model.ServerConfig{
		CORSOrigins:     []string{"https://app.example.com"},
		PracticeCount:   5,
		PracticeMinutes: 10,
	})

	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.Use(h.BasePathMiddleware)
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: st, users: users}
}

// client returns a cookie-aware client that does not follow redirects.
func (ts *testServer) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (ts *testServer) token(t *testing.T, username string) string {
	t.Helper()
	resp := ts.call(t, "", http.MethodPost, "/api/auth/token", tokenRequest{Username: username, Password: testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr tokenResponse
	decode(t, resp, &tr)
	require.NotEmpty(t, tr.Token)
	return tr.Token
}

// call sends a JSON request, with a bearer token when tok is set.
func (ts *testServer) call(t *testing.T, tok, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("course 3: %w", model.ErrNotFound), http.StatusNotFound},
		{model.ErrForbidden, http.StatusForbidden},
		{model.ErrValidation, http.StatusBadRequest},
		{model.ErrNoQuestions, http.StatusBadRequest},
		{model.ErrAlreadyAttempted, http.StatusConflict},
		{model.ErrAlreadyAnswered, http.StatusConflict},
		{model.ErrNotInProgress, http.StatusConflict},
		{model.ErrConflict, http.StatusConflict},
		{model.ErrDeadlinePassed, http.StatusGone},
		{model.ErrPracticeExpired, http.StatusGone},
		{model.ErrUnavailable, http.StatusServiceUnavailable},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.call(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginFlow(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client(t)

	resp, err := c.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, err = c.Get(ts.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	u, _ := url.Parse(ts.URL)
	csrf := ""
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			csrf = ck.Value
		}
	}
	require.NotEmpty(t, csrf)

	// Missing form token.
	resp, err = c.PostForm(ts.URL+"/login", url.Values{"username": {"stu"}, "password": {testPassword}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Each request rotates the token, so fetch the current one again.
	resp, err = c.Get(ts.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			csrf = ck.Value
		}
	}

	resp, err = c.PostForm(ts.URL+"/login", url.Values{"username": {"stu"}, "password": {"wrong-password"}, "csrf_token": {csrf}})
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "Invalid username or password")

	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			csrf = ck.Value
		}
	}
	resp, err = c.PostForm(ts.URL+"/login", url.Values{"username": {"stu"}, "password": {testPassword}, "csrf_token": {csrf}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, err = c.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "STU")

	// The session cookie also authenticates the API.
	resp, err = c.Get(ts.URL + "/api/me")
	require.NoError(t, err)
	var me model.User
	decode(t, resp, &me)
	resp.Body.Close()
	assert.Equal(t, "stu", me.Username)
}

func TestInactiveUserCannotLogIn(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.call(t, "", http.MethodPost, "/api/auth/token", tokenRequest{Username: "gone", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, "", http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.call(t, "not-a-jwt", http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.call(t, ts.token(t, "prof"), http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me model.User
	decode(t, resp, &me)
	assert.Equal(t, model.UserRoleProfessor, me.Role)
}

func TestCourseFlow(t *testing.T) {
	ts := newTestServer(t)
	prof, stu := ts.token(t, "prof"), ts.token(t, "stu")

	resp := ts.call(t, stu, http.MethodPost, "/api/courses", model.Course{Code: "CS1", Title: "Intro"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.call(t, prof, http.MethodPost, "/api/courses", map[string]any{"code": "CS1", "title": "Intro", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.call(t, prof, http.MethodPost, "/api/courses", model.Course{Code: "CS1", Title: "Intro"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var course model.Course
	decode(t, resp, &course)
	assert.Equal(t, ts.users["prof"].ID, course.ProfessorID)

	path := fmt.Sprintf("/api/courses/%d", course.ID)
	resp = ts.call(t, stu, http.MethodGet, path+"/announcements", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.call(t, stu, http.MethodPost, path+"/enroll", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.call(t, prof, http.MethodPost, path+"/announcements", model.Announcement{Title: "Welcome", Body: "Read chapter 1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.call(t, stu, http.MethodGet, path+"/announcements", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var anns []model.Announcement
	decode(t, resp, &anns)
	require.Len(t, anns, 1)
	assert.Equal(t, "Welcome", anns[0].Title)

	resp = ts.call(t, stu, http.MethodGet, "/api/courses/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExamOverAPI(t *testing.T) {
	ts := newTestServer(t)
	prof, stu := ts.token(t, "prof"), ts.token(t, "stu")

	resp := ts.call(t, prof, http.MethodPost, "/api/courses", model.Course{Code: "GO", Title: "Go"})
	var course model.Course
	decode(t, resp, &course)
	ts.call(t, stu, http.MethodPost, fmt.Sprintf("/api/courses/%d/enroll", course.ID), nil)

	resp = ts.call(t, prof, http.MethodPost, "/api/templates", model.ExamTemplate{
		CourseID: course.ID, Title: "Quiz", QuestionType: model.QuestionTrueFalse, QuestionCount: 1, DurationMinutes: 15,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var tmpl model.ExamTemplate
	decode(t, resp, &tmpl)
	tpath := fmt.Sprintf("/api/templates/%d", tmpl.ID)

	resp = ts.call(t, prof, http.MethodPost, tpath+"/publish", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "bank.yaml")
	require.NoError(t, err)
	_, err = fw.Write([]byte("- prompt: Slices are reference types\n  correct_answer: \"yes\"\n  category: slices\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, ts.URL+tpath+"/import", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+prof)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res catalog.ImportResult
	decode(t, resp, &res)
	assert.Equal(t, 1, res.Imported)

	resp = ts.call(t, prof, http.MethodPost, tpath+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.call(t, stu, http.MethodPost, tpath+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v exam.View
	decode(t, resp, &v)
	require.Len(t, v.Questions, 1)
	assert.Empty(t, v.Questions[0].CorrectAnswer)

	spath := fmt.Sprintf("/api/sessions/%d", v.Session.ID)
	resp = ts.call(t, stu, http.MethodPut, fmt.Sprintf("%s/answers/%d", spath, v.Questions[0].ID), answerRequest{Response: "true"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.call(t, stu, http.MethodPost, spath+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess model.ExamSession
	decode(t, resp, &sess)
	assert.Equal(t, float64(1), sess.Score)

	resp = ts.call(t, stu, http.MethodPost, tpath+"/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.call(t, prof, http.MethodGet, tpath+"/export.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	csv, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(csv), "stu")

	resp = ts.call(t, prof, http.MethodPost, tpath+"/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestProblemSubmissionRanks(t *testing.T) {
	ts := newTestServer(t)
	prof, stu := ts.token(t, "prof"), ts.token(t, "stu")

	resp := ts.call(t, prof, http.MethodPost, "/api/problems", model.Problem{
		Slug: "two-sum", Title: "Two Sum", Difficulty: model.DifficultyEasy, Category: "arrays",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.call(t, stu, http.MethodPost, "/api/problems", model.Problem{Slug: "x", Title: "X", Difficulty: model.DifficultyEasy})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.call(t, stu, http.MethodPost, "/api/problems/two-sum/submissions", model.ProblemSubmission{Code: "func f() {}", Verdict: model.VerdictAccepted})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.call(t, stu, http.MethodGet, "/api/submissions?problem=two-sum", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var subs []model.ProblemSubmission
	decode(t, resp, &subs)
	assert.Len(t, subs, 1)

	resp = ts.call(t, stu, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lb leaderboardResponse
	decode(t, resp, &lb)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "stu", lb.Entries[0].Username)
	require.NotNil(t, lb.Me)
	assert.Equal(t, 1, lb.Me.Rank)
	assert.Equal(t, float64(10), lb.Me.Points)
}

func TestAdminUsers(t *testing.T) {
	ts := newTestServer(t)
	admin, prof := ts.token(t, "admin"), ts.token(t, "prof")

	resp := ts.call(t, prof, http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.call(t, admin, http.MethodPost, "/api/admin/users", catalog.NewUser{Username: "new", Password: "long-enough"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created model.User
	decode(t, resp, &created)
	assert.Equal(t, model.UserRoleStudent, created.Role)

	resp = ts.call(t, admin, http.MethodPost, "/api/admin/users", catalog.NewUser{Username: "new", Password: "long-enough"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.call(t, admin, http.MethodPost, fmt.Sprintf("/api/admin/users/%d/toggle", created.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var toggled model.User
	decode(t, resp, &toggled)
	assert.False(t, toggled.Active)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/me", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
