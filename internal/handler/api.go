package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/practice"
	"github.com/pavelanni/codedrill/internal/rbac"
)

func (h *Handler) apiRoutes(r chi.Router) {
	r.Get("/me", h.apiMe)
	r.Get("/me/stats", h.apiMyStats)
	r.Get("/me/skills", h.apiMySkills)
	r.Get("/me/weak-categories", h.apiMyWeakCategories)

	r.Route("/courses", func(r chi.Router) {
		r.Get("/", h.apiListCourses)
		r.With(rbac.Require("course:create")).Post("/", h.apiCreateCourse)
		r.Get("/enrolled", h.apiEnrolledCourses)
		r.Get("/{courseID}", h.apiGetCourse)
		r.With(rbac.Require("course:enroll")).Post("/{courseID}/enroll", h.apiEnroll)
		r.Get("/{courseID}/announcements", h.apiListAnnouncements)
		r.With(rbac.Require("announcement:create")).Post("/{courseID}/announcements", h.apiCreateAnnouncement)
		r.Get("/{courseID}/templates", h.apiListTemplates)
	})
	r.Get("/announcements/recent", h.apiRecentAnnouncements)

	r.Route("/templates", func(r chi.Router) {
		r.With(rbac.Require("template:create")).Post("/", h.apiCreateTemplate)
		r.Get("/{templateID}", h.apiGetTemplate)
		r.With(rbac.Require("template:update")).Put("/{templateID}", h.apiUpdateTemplate)
		r.With(rbac.Require("template:publish")).Post("/{templateID}/publish", h.apiPublish(true))
		r.With(rbac.Require("template:publish")).Post("/{templateID}/unpublish", h.apiPublish(false))
		r.With(rbac.Require("question:view")).Get("/{templateID}/questions", h.apiListQuestions)
		r.With(rbac.Require("question:create")).Post("/{templateID}/questions", h.apiCreateQuestion)
		r.With(rbac.Require("question:import")).Post("/{templateID}/import", h.apiImportBank)
		r.With(rbac.Require("exam:take")).Post("/{templateID}/start", h.apiStartExam)
		r.With(rbac.Require("exam:grade")).Get("/{templateID}/sessions", h.apiListSessions)
		r.With(rbac.Require("exam:export")).Get("/{templateID}/export.csv", h.apiExportCSV)
		r.With(rbac.Require("exam:export")).Post("/{templateID}/export", h.apiStoreExport)
	})
	r.With(rbac.Require("question:update")).Put("/questions/{questionID}", h.apiUpdateQuestion)
	r.With(rbac.Require("question:delete")).Delete("/questions/{questionID}", h.apiDeleteQuestion)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.apiGetSession)
		r.With(rbac.Require("exam:take")).Put("/answers/{questionID}", h.apiSaveAnswer)
		r.With(rbac.Require("exam:take")).Post("/submit", h.apiSubmit)
		r.With(rbac.Require("exam:grade")).Post("/answers/{questionID}/grade", h.apiGradeAnswer)
		r.With(rbac.Require("exam:grade")).Post("/answers/{questionID}/suggest", h.apiSuggestGrade)
	})

	r.Route("/practice", func(r chi.Router) {
		r.Use(rbac.Require("practice:use"))
		r.Post("/", h.apiCreatePractice)
		r.Get("/{practiceID}", h.apiGetPractice)
		r.Post("/{practiceID}/items/{itemID}", h.apiAnswerPractice)
		r.Post("/{practiceID}/complete", h.apiCompletePractice)
	})

	r.Route("/problems", func(r chi.Router) {
		r.Get("/", h.apiListProblems)
		r.With(rbac.Require("problem:create")).Post("/", h.apiCreateProblem)
		r.Get("/{slug}", h.apiGetProblem)
		r.Get("/{slug}/submissions", h.apiListSubmissions)
		r.With(rbac.Require("problem:submit")).Post("/{slug}/submissions", h.apiRecordSubmission)
	})
	r.Get("/submissions", h.apiListSubmissions)

	r.Route("/challenges", func(r chi.Router) {
		r.Get("/", h.apiListChallenges)
		r.With(rbac.Require("challenge:create")).Post("/", h.apiCreateChallenge)
		r.With(rbac.Require("challenge:join")).Post("/join", h.apiJoinChallenge)
		r.Get("/{challengeID}", h.apiGetChallenge)
		r.Get("/{challengeID}/leaderboard", h.apiChallengeLeaderboard)
	})

	r.With(rbac.Require("leaderboard:view")).Get("/leaderboard", h.apiLeaderboard)

	r.Route("/admin/users", func(r chi.Router) {
		r.Use(rbac.Require("user:manage"))
		r.Get("/", h.apiListUsers)
		r.Post("/", h.apiCreateUser)
		r.Post("/{userID}/toggle", h.apiToggleUser)
	})
}

// respond writes v as JSON, or the error mapped to its status.
func respond[T any](w http.ResponseWriter, r *http.Request, status int, v T, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func queryInt(r *http.Request, name string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return n
	}
	return def
}

func (h *Handler) apiMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, user(r))
}

func (h *Handler) apiMyStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.board.UserStats(r.Context(), user(r).ID)
	respond(w, r, http.StatusOK, st, err)
}

func (h *Handler) apiMySkills(w http.ResponseWriter, r *http.Request) {
	rep, err := h.board.Skills(r.Context(), user(r).ID)
	respond(w, r, http.StatusOK, rep, err)
}

func (h *Handler) apiMyWeakCategories(w http.ResponseWriter, r *http.Request) {
	weak, err := h.board.WeakCategories(r.Context(), user(r).ID, queryInt(r, "min_attempts", 1), queryInt(r, "limit", 5))
	respond(w, r, http.StatusOK, weak, err)
}

func (h *Handler) apiListCourses(w http.ResponseWriter, r *http.Request) {
	cs, err := h.catalog.ListCourses(r.Context(), user(r))
	respond(w, r, http.StatusOK, cs, err)
}

func (h *Handler) apiEnrolledCourses(w http.ResponseWriter, r *http.Request) {
	cs, err := h.catalog.ListEnrolledCourses(r.Context(), user(r))
	respond(w, r, http.StatusOK, cs, err)
}

func (h *Handler) apiCreateCourse(w http.ResponseWriter, r *http.Request) {
	var c model.Course
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.catalog.CreateCourse(r.Context(), user(r), c)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *Handler) apiGetCourse(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "courseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.GetCourse(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) apiEnroll(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "courseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.Enroll(r.Context(), user(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apiListAnnouncements(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "courseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	as, err := h.catalog.ListAnnouncements(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, as, err)
}

func (h *Handler) apiCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "courseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var a model.Announcement
	if err := decodeJSON(w, r, &a); err != nil {
		writeError(w, r, err)
		return
	}
	a.CourseID = id
	created, err := h.catalog.CreateAnnouncement(r.Context(), user(r), a)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *Handler) apiRecentAnnouncements(w http.ResponseWriter, r *http.Request) {
	as, err := h.catalog.RecentAnnouncements(r.Context(), user(r), queryInt(r, "limit", 5))
	respond(w, r, http.StatusOK, as, err)
}

func (h *Handler) apiListTemplates(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "courseID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ts, err := h.catalog.ListTemplates(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, ts, err)
}

func (h *Handler) apiCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t model.ExamTemplate
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.catalog.CreateTemplate(r.Context(), user(r), t)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *Handler) apiGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.catalog.GetTemplate(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, t, err)
}

func (h *Handler) apiUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var t model.ExamTemplate
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	t.ID = id
	updated, err := h.catalog.UpdateTemplate(r.Context(), user(r), t)
	respond(w, r, http.StatusOK, updated, err)
}

func (h *Handler) apiPublish(published bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "templateID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		t, err := h.catalog.SetPublished(r.Context(), user(r), id, published)
		respond(w, r, http.StatusOK, t, err)
	}
}

func (h *Handler) apiListQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	qs, err := h.catalog.ListQuestions(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, qs, err)
}

func (h *Handler) apiCreateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var q model.Question
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	q.TemplateID = id
	created, err := h.catalog.CreateQuestion(r.Context(), user(r), q)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *Handler) apiUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "questionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var q model.Question
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	q.ID = id
	updated, err := h.catalog.UpdateQuestion(r.Context(), user(r), q)
	respond(w, r, http.StatusOK, updated, err)
}

func (h *Handler) apiDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "questionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.DeleteQuestion(r.Context(), user(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apiStartExam(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.exams.Start(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, v, err)
}

func (h *Handler) apiListSessions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ss, err := h.exams.ListSessions(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, ss, err)
}

func (h *Handler) apiExportCSV(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Rendered to memory first so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := h.exams.ExportCSV(r.Context(), user(r), id, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="template-%d.csv"`, id))
	_, _ = w.Write(buf.Bytes())
}

type exportResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (h *Handler) apiStoreExport(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	key, url, err := h.exams.StoreExport(r.Context(), user(r), id)
	respond(w, r, http.StatusCreated, exportResponse{Key: key, URL: url}, err)
}

func (h *Handler) apiGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.exams.Review(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, v, err)
}

type answerRequest struct {
	Response string `json:"response"`
}

func (h *Handler) apiSaveAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	qid, err := idParam(r, "questionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.exams.SaveAnswer(r.Context(), user(r), id, qid, req.Response); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apiSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.exams.Submit(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, sess, err)
}

type gradeRequest struct {
	Points   float64 `json:"points"`
	Feedback string  `json:"feedback"`
}

func (h *Handler) apiGradeAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	qid, err := idParam(r, "questionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req gradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.exams.GradeAnswer(r.Context(), user(r), id, qid, req.Points, req.Feedback)
	respond(w, r, http.StatusOK, sess, err)
}

func (h *Handler) apiSuggestGrade(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	qid, err := idParam(r, "questionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sug, err := h.exams.SuggestGrade(r.Context(), user(r), id, qid)
	respond(w, r, http.StatusOK, sug, err)
}

func (h *Handler) apiCreatePractice(w http.ResponseWriter, r *http.Request) {
	var req practice.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Count == 0 {
		req.Count = h.config.PracticeCount
	}
	if req.Minutes == 0 {
		req.Minutes = h.config.PracticeMinutes
	}
	v, err := h.practice.Create(r.Context(), user(r), req)
	respond(w, r, http.StatusCreated, v, err)
}

func (h *Handler) apiGetPractice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "practiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.practice.Get(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, v, err)
}

type practiceAnswerRequest struct {
	Response    string `json:"response"`
	SelfCorrect *bool  `json:"self_correct"`
}

func (h *Handler) apiAnswerPractice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "practiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID, err := idParam(r, "itemID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req practiceAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.practice.Answer(r.Context(), user(r), id, itemID, req.Response, req.SelfCorrect)
	respond(w, r, http.StatusOK, res, err)
}

func (h *Handler) apiCompletePractice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "practiceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := h.practice.Complete(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, sum, err)
}

func (h *Handler) apiListProblems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ps, err := h.catalog.ListProblems(r.Context(), user(r), model.Difficulty(q.Get("difficulty")), q.Get("category"))
	respond(w, r, http.StatusOK, ps, err)
}

func (h *Handler) apiCreateProblem(w http.ResponseWriter, r *http.Request) {
	var p model.Problem
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.catalog.CreateProblem(r.Context(), user(r), p)
	respond(w, r, http.StatusCreated, created, err)
}

func (h *Handler) apiGetProblem(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProblem(r.Context(), user(r), chi.URLParam(r, "slug"))
	respond(w, r, http.StatusOK, p, err)
}

func (h *Handler) apiRecordSubmission(w http.ResponseWriter, r *http.Request) {
	var sub model.ProblemSubmission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.catalog.RecordSubmission(r.Context(), user(r), chi.URLParam(r, "slug"), sub)
	respond(w, r, http.StatusCreated, created, err)
}

// apiListSubmissions serves both /problems/{slug}/submissions and
// /submissions?problem=slug.
func (h *Handler) apiListSubmissions(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		slug = r.URL.Query().Get("problem")
	}
	subs, err := h.catalog.ListSubmissions(r.Context(), user(r), slug)
	respond(w, r, http.StatusOK, subs, err)
}

func (h *Handler) apiListChallenges(w http.ResponseWriter, r *http.Request) {
	cs, err := h.catalog.ListChallenges(r.Context(), user(r))
	respond(w, r, http.StatusOK, cs, err)
}

func (h *Handler) apiCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var c model.Challenge
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.catalog.CreateChallenge(r.Context(), user(r), c)
	respond(w, r, http.StatusCreated, created, err)
}

type joinRequest struct {
	InviteCode string `json:"invite_code"`
}

func (h *Handler) apiJoinChallenge(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.JoinChallenge(r.Context(), user(r), req.InviteCode)
	respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) apiGetChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "challengeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.GetChallenge(r.Context(), user(r), id)
	respond(w, r, http.StatusOK, c, err)
}

func (h *Handler) apiChallengeLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "challengeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.ChallengeBoardAccess(r.Context(), user(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.board.ChallengeLeaderboard(r.Context(), id)
	respond(w, r, http.StatusOK, entries, err)
}

type leaderboardResponse struct {
	Entries []model.LeaderboardEntry `json:"entries"`
	Me      *model.LeaderboardEntry  `json:"me"`
}

func (h *Handler) apiLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.board.Leaderboard(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, r, err)
		return
	}
	me, err := h.board.UserRank(r.Context(), user(r).ID)
	respond(w, r, http.StatusOK, leaderboardResponse{Entries: entries, Me: me}, err)
}
