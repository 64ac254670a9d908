package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang string
		id   string
		want string
	}{
		{"en", "Leaderboard", "Leaderboard"},
		{"en", "StartPractice", "Start practice"},
		{"ru", "Leaderboard", "Рейтинг"},
		{"ru", "StartPractice", "Начать тренировку"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "1 question available."},
		{"en", 5, "5 questions available."},
		{"ru", 1, "Доступен 1 вопрос."},
		{"ru", 3, "Доступно 3 вопроса."},
		{"ru", 5, "Доступно 5 вопросов."},
		{"ru", 21, "Доступен 21 вопрос."},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		if got := Tp(ctx, "QuestionsAvailable", tt.count); got != tt.want {
			t.Errorf("%s Tp(QuestionsAvailable, %d) = %q, want %q", tt.lang, tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")
	got := Td(ctx, "Welcome", map[string]any{"Name": "Ada"})
	if got != "Welcome, Ada!" {
		t.Errorf("Td(Welcome) = %q, want 'Welcome, Ada!'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")
	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
	if got := T(context.Background(), "Login"); got != "Log in" {
		t.Errorf("T without localizer = %q, want default language", got)
	}
}

func TestMatch(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		prefs []string
		want  string
	}{
		{nil, "en"},
		{[]string{"ru"}, "ru"},
		{[]string{"", "", "ru-RU,ru;q=0.9,en;q=0.8"}, "ru"},
		{[]string{"de"}, "en"},
		{[]string{"en", "ru"}, "en"},
		{[]string{"not a tag!!"}, "en"},
	}
	for _, tt := range tests {
		if got := Match(tt.prefs...); got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.prefs, got, tt.want)
		}
	}
	if got := Languages(); len(got) != 2 || got[0] != "en" {
		t.Errorf("Languages() = %v, want en first of two", got)
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(T(r.Context(), "Leaderboard")))
	}))

	tests := []struct {
		name       string
		url        string
		cookie     string
		accept     string
		want       string
		wantCookie bool
	}{
		{"default", "/", "", "", "Leaderboard", false},
		{"accept language", "/", "", "ru", "Рейтинг", false},
		{"cookie beats header", "/", "en", "ru", "Leaderboard", false},
		{"query beats cookie", "/?lang=ru", "en", "", "Рейтинг", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookie, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
			if got := len(rec.Result().Cookies()) > 0; got != tt.wantCookie {
				t.Errorf("cookie set = %v, want %v", got, tt.wantCookie)
			}
		})
	}
}
