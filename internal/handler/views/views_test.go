package views

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/pavelanni/codedrill/internal/i18n"
	"github.com/pavelanni/codedrill/internal/model"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestLoginPage(t *testing.T) {
	ctx := model.ContextWithBasePath(context.Background(), "/drill")
	ctx = model.ContextWithCSRFToken(ctx, `tok"en`)
	out := render(t, ctx, LoginPage("Invalid username or password."))

	for _, want := range []string{
		"<!doctype html>",
		`<p class="error">Invalid username or password.</p>`,
		`action="/drill/login"`,
		`name="csrf_token" value="tok&#34;en"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("login page missing %q", want)
		}
	}
	if strings.Contains(out, "<nav>") {
		t.Error("anonymous page rendered the navigation bar")
	}
}

func TestLayoutEscapesUserText(t *testing.T) {
	u := &model.User{Username: "stu", DisplayName: "<b>STU</b>"}
	ctx := model.ContextWithUser(context.Background(), u)
	entries := []model.LeaderboardEntry{
		{Rank: 1, Username: "ann", DisplayName: "<script>x</script>", Points: 30, Solved: 1},
		{Rank: 2, Username: "bob", Points: 10.5, Solved: 2},
	}
	out := render(t, ctx, LeaderboardPage(entries, &entries[1]))

	for _, want := range []string{
		"<span>&lt;b&gt;STU&lt;/b&gt;</span>",
		"<td>&lt;script&gt;x&lt;/script&gt;</td>",
		"<td>bob</td><td>10.5</td><td>2</td>",
		"Your rank: #2 with 10.5 points",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("leaderboard page missing %q", want)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Error("display name was not escaped")
	}
}

func TestPracticePage(t *testing.T) {
	yes := true
	answered := time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC)
	sess := model.PracticeSession{ID: 7, Status: model.PracticeActive, DeadlineAt: time.Date(2025, 3, 1, 9, 20, 0, 0, time.UTC)}
	items := []PracticeItemView{
		{
			Item:     model.PracticeItem{ID: 1, Response: "true", Correct: &yes, AnsweredAt: &answered},
			Question: model.Question{Type: model.QuestionTrueFalse, Prompt: "Maps are references"},
		},
		{
			Item:     model.PracticeItem{ID: 2},
			Question: model.Question{Type: model.QuestionMultipleChoice, Prompt: "len(nil)?", Options: []string{"0", "panic"}},
		},
		{
			Item:     model.PracticeItem{ID: 3},
			Question: model.Question{Type: model.QuestionEssay, Prompt: "Explain defer", CodeSnippet: "defer f()"},
		},
	}
	out := render(t, context.Background(), PracticePage(sess, items, model.PracticeSummary{Total: 3, Answered: 1, Correct: 1}))

	for _, want := range []string{
		"1 / 3 · 1 ✓ · 09:20",
		"<p>true ✓</p>",
		`action="/practice/7/items/2"`,
		`value="panic"> panic</label>`,
		"<pre><code>defer f()</code></pre>",
		`name="self_correct"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("practice page missing %q", want)
		}
	}
	if strings.Contains(out, `/practice/7/items/1"`) {
		t.Error("answered item still has a form")
	}

	sess.Status = model.PracticeExpired
	out = render(t, context.Background(), PracticePage(sess, items, model.PracticeSummary{Total: 3, Answered: 1, Correct: 1}))
	if strings.Contains(out, "<form") {
		t.Error("closed session still accepts answers")
	}
}

func TestHelpers(t *testing.T) {
	if got := percent(0.456); got != "46%" {
		t.Errorf("percent = %q", got)
	}
	if got := entryName(model.LeaderboardEntry{Username: "ann"}); got != "ann" {
		t.Errorf("entryName = %q", got)
	}
	if got := mark(model.PracticeItem{}); got != "✗" {
		t.Errorf("mark of unanswered item = %q", got)
	}
}
