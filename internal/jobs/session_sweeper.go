// session_sweeper.go implements the SessionSweeper background job, which
// periodically deletes session rows older than the token lifetime. Those rows
// can no longer authorize anything because every token issued for them has
// expired; removing them keeps the session table bounded. Redis-backed
// sessions expire by key TTL and need no sweeping.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sports-federation/federation-portal/internal/telemetry"
)

// ExpiredSessionDeleter is implemented by session stores that need sweeping.
type ExpiredSessionDeleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionSweeper periodically removes sessions whose tokens have expired.
type SessionSweeper struct {
	store    ExpiredSessionDeleter
	tokenTTL time.Duration
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewSessionSweeper creates a new SessionSweeper. A non-positive interval
// defaults to one hour.
func NewSessionSweeper(store ExpiredSessionDeleter, tokenTTL, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionSweeper{
		store:    store,
		tokenTTL: tokenTTL,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs an initial sweep immediately, then repeats on the configured
// interval. It blocks until ctx is cancelled or Stop() is called.
func (s *SessionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("session sweeper started", "interval", s.interval, "token_ttl", s.tokenTTL)

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			slog.Info("session sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("session sweeper context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit. It is safe to call more than once.
func (s *SessionSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.tokenTTL)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("session sweeper: failed to delete expired sessions", "cutoff", cutoff, "error", err)
		return
	}
	if n > 0 {
		telemetry.SessionsRevokedTotal.WithLabelValues("sweep").Add(float64(n))
		slog.Info("session sweeper: deleted expired sessions", "count", n, "cutoff", cutoff)
	}
}
