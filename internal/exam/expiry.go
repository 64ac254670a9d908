package exam

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpireOverdue auto-submits every in-progress session whose deadline has
// passed and purges expired login sessions. It returns the number of exam
// sessions closed.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.store.ListOverdueSessions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list overdue sessions: %w", err)
	}
	closed := 0
	for _, sess := range overdue {
		if _, err := s.submit(ctx, sess, true); err != nil {
			slog.Error("auto-submit failed", "session_id", sess.ID, "error", err)
			continue
		}
		closed++
	}
	purged, err := s.store.CleanupExpiredSessions(ctx, now)
	if err != nil {
		return closed, fmt.Errorf("cleanup auth sessions: %w", err)
	}
	if closed > 0 || purged > 0 {
		slog.Info("expiry sweep", "auto_submitted", closed, "auth_sessions_purged", purged)
	}
	return closed, nil
}

// RunExpiry sweeps every interval until ctx is cancelled. A non-positive
// interval disables the sweep.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		slog.Warn("expiry sweep disabled", "interval", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireOverdue(ctx, s.now()); err != nil {
				slog.Error("expiry sweep failed", "error", err)
			}
		}
	}
}
