package exam

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/codedrill/internal/model"
	"github.com/pavelanni/codedrill/internal/rbac"
)

var csvHeader = []string{
	"username", "display_name", "session_id", "status", "auto_submitted",
	"started_at", "submitted_at", "score", "max_score", "percent",
}

// ExportCSV writes one row per session of a template.
func (s *Service) ExportCSV(ctx context.Context, u *model.User, templateID int64, w io.Writer) error {
	if !rbac.Can(u, "exam:export") {
		return model.ErrForbidden
	}
	_, course, err := s.courseOf(ctx, templateID)
	if err != nil {
		return err
	}
	if !rbac.CanManageCourse(u, course) {
		return model.ErrForbidden
	}
	rows, err := s.store.ListSubmissionRows(ctx, templateID)
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}
	return writeCSV(w, rows)
}

func writeCSV(w io.Writer, rows []model.SubmissionRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		submitted := ""
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.UTC().Format(time.RFC3339)
		}
		rec := []string{
			csvText(r.Username),
			csvText(r.DisplayName),
			strconv.FormatInt(r.SessionID, 10),
			string(r.Status),
			strconv.FormatBool(r.AutoSubmitted),
			r.StartedAt.UTC().Format(time.RFC3339),
			submitted,
			strconv.FormatFloat(r.Score, 'f', -1, 64),
			strconv.FormatFloat(r.MaxScore, 'f', -1, 64),
			strconv.FormatFloat(r.Percent(), 'f', 1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvText keeps spreadsheet apps from evaluating user-supplied text as a
// formula.
func csvText(s string) string {
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		return "'" + s
	}
	return s
}

// StoreExport writes the CSV export to the blob store and returns its key
// and a download URL.
func (s *Service) StoreExport(ctx context.Context, u *model.User, templateID int64) (key, url string, err error) {
	if s.blobs == nil {
		return "", "", model.ErrUnavailable
	}
	var buf bytes.Buffer
	if err := s.ExportCSV(ctx, u, templateID, &buf); err != nil {
		return "", "", err
	}
	name := fmt.Sprintf("exports/template-%d-%s.csv", templateID, s.now().Format("20060102-150405"))
	key, err = s.blobs.Put(ctx, name, &buf, int64(buf.Len()), "text/csv")
	if err != nil {
		return "", "", fmt.Errorf("store export: %w", err)
	}
	url, err = s.blobs.URL(ctx, key)
	if err != nil {
		return key, "", err
	}
	return key, url, nil
}
