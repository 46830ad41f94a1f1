package service

import (
	"context"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/walletbridge/core"
)

// DefaultRefreshInterval is how often the passive refresh check runs.
const DefaultRefreshInterval = time.Minute

// RunAutoRefresh re-checks token staleness on a fixed interval until ctx is
// cancelled. Intended to run in its own goroutine.
func (s *SessionService) RunAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeRefresh(ctx)
		}
	}
}

// HandleForeground triggers the same staleness check when the app returns to
// the foreground.
func (s *SessionService) HandleForeground(ctx context.Context) {
	s.maybeRefresh(ctx)
}

// maybeRefresh refreshes when the session is authenticated, the access token
// has gone stale and the refresh token is still valid. Concurrent triggers
// are not deduplicated here; the last token write wins.
func (s *SessionService) maybeRefresh(ctx context.Context) {
	s.mu.Lock()
	stale := s.status == core.StatusAuthenticated && s.tokens != nil &&
		!s.tokens.AccessValidAt(s.now()) && s.tokens.RefreshValidAt(s.now())
	s.mu.Unlock()
	if !stale {
		return
	}

	slogctx.Debug(ctx, "access token stale, refreshing")
	_ = s.Refresh(ctx)
}
