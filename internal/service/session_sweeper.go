package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type expiredSessionStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sweepMetrics interface {
	RecordSessionsSwept(n int64)
}

// SessionSweeper periodically removes refresh sessions past their absolute expiry.
type SessionSweeper struct {
	store    expiredSessionStore
	metrics  sweepMetrics
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

// NewSessionSweeper constructs a sweeper; a non-positive interval means hourly.
func NewSessionSweeper(store expiredSessionStore, metrics sweepMetrics, logger *zap.Logger, interval time.Duration) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionSweeper{store: store, metrics: metrics, logger: logger, interval: interval, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes expired sessions and reports how many were removed.
func (s *SessionSweeper) SweepOnce(ctx context.Context) int64 {
	removed, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("session sweep failed", zap.Error(err))
		}
		return 0
	}
	if removed > 0 {
		s.logger.Info("expired refresh sessions removed", zap.Int64("count", removed))
		if s.metrics != nil {
			s.metrics.RecordSessionsSwept(removed)
		}
	}
	return removed
}
