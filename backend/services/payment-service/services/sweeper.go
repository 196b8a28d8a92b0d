package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type staleExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// StartStaleOrderSweeper periodically fails Pending orders older than ttl.
// Checkouts that were abandoned without a gateway callback end up here.
// The sweep runs every ttl/2, at least once a minute.
func StartStaleOrderSweeper(ctx context.Context, svc staleExpirer, ttl time.Duration, logger *zap.Logger) {
	if svc == nil || ttl <= 0 {
		logger.Warn("stale order sweeper not started", zap.Duration("ttl", ttl))
		return
	}

	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval <= 0 {
		interval = ttl
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logger.Info("stale order sweeper started", zap.Duration("ttl", ttl), zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				logger.Info("stale order sweeper stopping")
				return
			case <-ticker.C:
			}

			if _, err := svc.ExpireStale(ctx, ttl); err != nil && ctx.Err() == nil {
				logger.Error("stale order sweep failed", zap.Error(err))
			}
		}
	}()
}
