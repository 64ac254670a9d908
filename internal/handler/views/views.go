// Package views renders the server-side pages. Components live in the
// .templ files; the *_templ.go files are generated from them.
package views

//go:generate templ generate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pavelanni/codedrill/internal/i18n"
	"github.com/pavelanni/codedrill/internal/model"
)

// DashboardData feeds DashboardPage.
type DashboardData struct {
	Courses       []model.Course
	Announcements []model.Announcement
	Stats         *model.UserStats
	Rank          *model.LeaderboardEntry
	Weak          []model.CategoryStat
	CanPractice   bool
}

// PracticeItemView pairs an item with its question for PracticePage.
type PracticeItemView struct {
	Item     model.PracticeItem
	Question model.Question
}

func t(ctx context.Context, id string) string {
	return i18n.T(ctx, id)
}

func path(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

func welcome(ctx context.Context) string {
	name := ""
	if u := model.UserFromContext(ctx); u != nil {
		name = u.DisplayName
	}
	return i18n.Td(ctx, "Welcome", map[string]any{"Name": name})
}

func solvedLine(ctx context.Context, s *model.UserStats) string {
	solved := 0
	for _, n := range s.ProblemsSolved {
		solved += n
	}
	return i18n.Tp(ctx, "ProblemsSolved", solved)
}

func rankLine(ctx context.Context, e *model.LeaderboardEntry) string {
	return i18n.Td(ctx, "YourRank", map[string]any{"Rank": e.Rank, "Points": points(e.Points)})
}

func points(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

func entryName(e model.LeaderboardEntry) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Username
}

func practiceTitle(ctx context.Context, sess model.PracticeSession) string {
	return fmt.Sprintf("%s #%d", i18n.T(ctx, "StartPractice"), sess.ID)
}

// progress reads "answered / total · correct ✓ · deadline".
func progress(sess model.PracticeSession, s model.PracticeSummary) string {
	return fmt.Sprintf("%d / %d · %d ✓ · %s", s.Answered, s.Total, s.Correct, sess.DeadlineAt.Format("15:04"))
}

func itemPath(ctx context.Context, sessionID, itemID int64) string {
	return path(ctx, fmt.Sprintf("/practice/%d/items/%d", sessionID, itemID))
}

func mark(it model.PracticeItem) string {
	if it.Correct != nil && *it.Correct {
		return "✓"
	}
	return "✗"
}
