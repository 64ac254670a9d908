// Package handler wires the HTTP surface: the JSON API under /api and the
// server-rendered pages.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pavelanni/codedrill/internal/auth"
	"github.com/pavelanni/codedrill/internal/catalog"
	"github.com/pavelanni/codedrill/internal/exam"
	"github.com/pavelanni/codedrill/internal/leaderboard"
	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/practice"
	"github.com/pavelanni/codedrill/internal/rbac"
	"github.com/pavelanni/codedrill/internal/store"
)

// Deps are the services a Handler serves.
type Deps struct {
	Store       *store.Store
	Catalog     *catalog.Service
	Exams       *exam.Service
	Practice    *practice.Service
	Leaderboard *leaderboard.Service
	Tokens      *auth.Service
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	catalog  *catalog.Service
	exams    *exam.Service
	practice *practice.Service
	board    *leaderboard.Service
	tokens   *auth.Service
	config   model.ServerConfig
}

// New creates a new Handler.
func New(d Deps, cfg model.ServerConfig) *Handler {
	return &Handler{
		store:    d.Store,
		catalog:  d.Catalog,
		exams:    d.Exams,
		practice: d.Practice,
		board:    d.Leaderboard,
		tokens:   d.Tokens,
		config:   cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(h.csrfMiddleware)
		r.Get("/", h.handleDashboard)
		r.Get("/leaderboard", h.handleLeaderboardPage)
		r.Post("/logout", h.handleLogout)
		r.With(rbac.Require("practice:use")).Post("/practice", h.handleStartPracticeForm)
		r.Get("/practice/{practiceID}", h.handlePracticePage)
		r.Post("/practice/{practiceID}/items/{itemID}", h.handlePracticeAnswerForm)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Post("/auth/token", h.handleIssueToken)

		r.Group(func(r chi.Router) {
			r.Use(h.apiAuth)
			h.apiRoutes(r)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BasePathMiddleware injects the configured base path into the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrNoQuestions):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAlreadyAttempted), errors.Is(err, model.ErrAlreadyAnswered),
		errors.Is(err, model.ErrNotInProgress), errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrDeadlinePassed), errors.Is(err, model.ErrPracticeExpired):
		return http.StatusGone
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", model.ErrValidation, err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", model.ErrValidation, name)
	}
	return id, nil
}

func user(r *http.Request) *model.User {
	return model.UserFromContext(r.Context())
}
