package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pavelanni/codedrill/internal/handler/views"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/practice"
	"github.com/pavelanni/codedrill/internal/rbac"
)

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// pageError renders a plain error page for a service error.
func (h *Handler) pageError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusNotFound {
		h.render(w, r, status, views.NotFoundPage())
		return
	}
	if status == http.StatusInternalServerError {
		slog.Error("page failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := user(r)
	var d views.DashboardData
	var err error

	if u.Role == model.UserRoleStudent {
		d.Courses, err = h.catalog.ListEnrolledCourses(ctx, u)
	} else {
		d.Courses, err = h.catalog.ListCourses(ctx, u)
	}
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	if d.Announcements, err = h.catalog.RecentAnnouncements(ctx, u, 5); err != nil {
		h.pageError(w, r, err)
		return
	}
	if d.Stats, err = h.board.UserStats(ctx, u.ID); err != nil {
		h.pageError(w, r, err)
		return
	}
	if d.Rank, err = h.board.UserRank(ctx, u.ID); err != nil {
		h.pageError(w, r, err)
		return
	}
	if d.Weak, err = h.board.WeakCategories(ctx, u.ID, 3, 5); err != nil {
		h.pageError(w, r, err)
		return
	}
	d.CanPractice = rbac.Can(u, "practice:use")
	h.render(w, r, http.StatusOK, views.DashboardPage(d))
}

func (h *Handler) handleLeaderboardPage(w http.ResponseWriter, r *http.Request) {
	entries, err := h.board.Leaderboard(r.Context(), 100)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	me, err := h.board.UserRank(r.Context(), user(r).ID)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.LeaderboardPage(entries, me))
}

func formInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.FormValue(name))
	return n
}

func (h *Handler) handleStartPracticeForm(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(r.FormValue("course_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid course", http.StatusBadRequest)
		return
	}
	req := practice.Request{
		CourseID: courseID,
		Mode:     model.PracticeSingle,
		Count:    formInt(r, "count"),
		Minutes:  formInt(r, "minutes"),
	}
	if r.FormValue("mixed") != "" {
		req.Mode = model.PracticeMixed
	} else {
		req.QuestionType = model.QuestionType(r.FormValue("question_type"))
		if req.QuestionType == "" {
			req.QuestionType = model.QuestionMultipleChoice
		}
	}
	if req.Count == 0 {
		req.Count = h.config.PracticeCount
	}
	if req.Minutes == 0 {
		req.Minutes = h.config.PracticeMinutes
	}
	v, err := h.practice.Create(r.Context(), user(r), req)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	http.Redirect(w, r, h.path(fmt.Sprintf("/practice/%d", v.Session.ID)), http.StatusSeeOther)
}

func (h *Handler) handlePracticePage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "practiceID")
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	v, err := h.practice.Get(r.Context(), user(r), id)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	items := make([]views.PracticeItemView, len(v.Items))
	for i := range v.Items {
		items[i] = views.PracticeItemView{Item: v.Items[i], Question: v.Questions[i]}
	}
	h.render(w, r, http.StatusOK, views.PracticePage(v.Session, items, v.Summary))
}

func (h *Handler) handlePracticeAnswerForm(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "practiceID")
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	itemID, err := idParam(r, "itemID")
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	self := r.FormValue("self_correct") != ""
	_, err = h.practice.Answer(r.Context(), user(r), id, itemID, r.FormValue("response"), &self)
	if err != nil && !errors.Is(err, model.ErrAlreadyAnswered) {
		h.pageError(w, r, err)
		return
	}
	http.Redirect(w, r, h.path(fmt.Sprintf("/practice/%d", id)), http.StatusSeeOther)
}
