package i18n

import "net/http"

// LangCookie remembers an explicit language choice.
const LangCookie = "codedrill_lang"

// Middleware picks the page language for each request: a ?lang= query
// parameter, then the language cookie, then Accept-Language, then the
// default. A query choice is remembered in the cookie.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookie string
		if c, err := r.Cookie(LangCookie); err == nil {
			cookie = c.Value
		}
		query := r.URL.Query().Get("lang")
		lang := Match(query, cookie, r.Header.Get("Accept-Language"))
		if query != "" {
			http.SetCookie(w, &http.Cookie{
				Name:     LangCookie,
				Value:    lang,
				Path:     "/",
				MaxAge:   365 * 24 * 3600,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
