package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically expires stale reservations
type Janitor struct {
	store    InventoryStore
	interval time.Duration
	log      *zap.Logger
}

func NewJanitor(s InventoryStore, interval time.Duration, log *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Janitor{store: s, interval: interval, log: log}
}

// Run blocks until ctx is cancelled
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.store.ExpireReservations(ctx)
	if err != nil {
		j.log.Error("failed to expire reservations", zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Info("expired reservations", zap.Int("count", n))
	}
}
