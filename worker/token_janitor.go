package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenPruner deletes refresh tokens that expired before cutoff.
type TokenPruner interface {
	PruneRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenJanitor periodically removes expired refresh tokens.
type TokenJanitor struct {
	Pruner   TokenPruner
	Interval time.Duration
	Logger   *logrus.Entry
	now      func() time.Time
}

func NewTokenJanitor(pruner TokenPruner, interval time.Duration, logger *logrus.Entry) *TokenJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TokenJanitor{Pruner: pruner, Interval: interval, Logger: logger, now: time.Now}
}

func (tj *TokenJanitor) Start(ctx context.Context) {
	tj.Logger.Info("Token janitor started")

	ticker := time.NewTicker(tj.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tj.Logger.Info("Token janitor shutting down...")
			return
		case <-ticker.C:
			tj.RunOnce(ctx)
		}
	}
}

// RunOnce prunes tokens that expired more than a day ago.
func (tj *TokenJanitor) RunOnce(ctx context.Context) {
	n, err := tj.Pruner.PruneRefreshTokens(ctx, tj.now().Add(-24*time.Hour))
	if err != nil {
		tj.Logger.WithError(err).Error("Error pruning refresh tokens")
		return
	}
	if n > 0 {
		tj.Logger.WithField("count", n).Info("Pruned expired refresh tokens")
	}
}
