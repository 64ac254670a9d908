package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/codedrill/internal/handler/views"
	appI18n "github.com/pavelanni/codedrill/internal/i18n"
	"github.com/pavelanni/codedrill/internal/model"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// rotateCSRF issues a fresh token cookie and exposes it to the views.
func (h *Handler) rotateCSRF(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return r, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

// csrfMiddleware implements the double-submit cookie check for page forms.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			formToken := r.FormValue("csrf_token")
			if err != nil || cookie.Value == "" || formToken == "" {
				slog.Warn("CSRF token missing", "path", r.URL.Path)
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch", "path", r.URL.Path)
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}
		r, ok := h.rotateCSRF(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionUser resolves the page session cookie to an active user, or nil.
func (h *Handler) sessionUser(r *http.Request) *model.User {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	authSess, err := h.store.GetAuthSession(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to get auth session", "error", err)
		return nil
	}
	if authSess == nil {
		return nil
	}
	u, err := h.store.GetUserByID(r.Context(), authSess.UserID)
	if err != nil || u == nil || !u.Active {
		return nil
	}
	return u
}

// requireAuth is page middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := h.sessionUser(r)
		if u == nil {
			http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), u)))
	})
}

// apiAuth accepts a bearer token or, failing that, the page session cookie.
func (h *Handler) apiAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var u *model.User
		if hdr := r.Header.Get("Authorization"); hdr != "" {
			tok, ok := strings.CutPrefix(hdr, "Bearer ")
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unsupported authorization scheme"})
				return
			}
			claims, err := h.tokens.Parse(strings.TrimSpace(tok))
			if err != nil {
				writeError(w, r, err)
				return
			}
			id, err := claims.UserID()
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid subject"})
				return
			}
			if u, err = h.store.GetUserByID(r.Context(), id); err != nil {
				writeError(w, r, err)
				return
			}
			if u != nil && !u.Active {
				u = nil
			}
		} else {
			u = h.sessionUser(r)
		}
		if u == nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), u)))
	})
}

// checkPassword returns the active user matching the credentials, or nil.
func (h *Handler) checkPassword(r *http.Request, username, password string) (*model.User, error) {
	u, err := h.store.GetUserByUsername(r.Context(), strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.sessionUser(r) != nil {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	u, err := h.checkPassword(r, r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		slog.Error("failed to get user", "error", err)
	}
	if u == nil {
		h.render(w, r, http.StatusUnauthorized, views.LoginPage(appI18n.T(r.Context(), "InvalidCredentials")))
		return
	}

	token, err := h.store.CreateAuthSession(r.Context(), u.ID)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("user logged in", "username", u.Username)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.store.DeleteAuthSession(r.Context(), cookie.Value); err != nil {
			slog.Warn("failed to delete auth session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *model.User `json:"user"`
}

// handleIssueToken exchanges credentials for an API bearer token.
func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.checkPassword(r, req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}
	tok, exp, err := h.tokens.IssueToken(u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok, ExpiresAt: exp, User: u})
}
