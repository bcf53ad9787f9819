package publisher

import (
	"context"
	"time"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/order-service/internal/repository"
	"go.uber.org/zap"
)

const sweepBatchSize = 100

type publisher interface {
	Publish(ctx context.Context, order *domain.Order) error
}

// Sweeper republishes payment requests for orders that stayed CREATED for
// longer than stuckAfter, e.g. because the first publish failed. An order is
// republished at most once per stuckAfter. Each sweep handles one batch and
// the next sweep continues after it, so a large backlog is walked in full.
type Sweeper struct {
	repo       repository.OrderRepository
	publisher  publisher
	interval   time.Duration
	stuckAfter time.Duration
	batchSize  int
	now        func() time.Time
	log        *zap.Logger

	cursor   int64
	lastSent map[int64]time.Time
	seen     map[int64]struct{} // stuck orders met during the current pass
}

func NewSweeper(repo repository.OrderRepository, pub publisher, interval, stuckAfter time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		repo:       repo,
		publisher:  pub,
		interval:   interval,
		stuckAfter: stuckAfter,
		batchSize:  sweepBatchSize,
		now:        time.Now,
		log:        log,
		lastSent:   make(map[int64]time.Time),
		seen:       make(map[int64]struct{}),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := s.now()
	orders, err := s.repo.ListStale(ctx, domain.OrderStatusCreated, now.Add(-s.stuckAfter), s.cursor, s.batchSize)
	if err != nil {
		s.log.Error("failed to fetch stuck orders", zap.Error(err))
		return
	}

	for _, order := range orders {
		s.seen[order.ID] = struct{}{}
		if sent, ok := s.lastSent[order.ID]; ok && now.Sub(sent) < s.stuckAfter {
			continue
		}
		if err := s.publisher.Publish(ctx, order); err != nil {
			s.log.Error("failed to republish payment request",
				zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}
		s.lastSent[order.ID] = now
		s.log.Info("republished payment request for stuck order", zap.Int64("order_id", order.ID))
	}

	if len(orders) == s.batchSize {
		s.cursor = orders[len(orders)-1].ID
		return
	}

	// End of the backlog: orders that left CREATED drop out of the bookkeeping.
	for id := range s.lastSent {
		if _, ok := s.seen[id]; !ok {
			delete(s.lastSent, id)
		}
	}
	s.seen = make(map[int64]struct{})
	s.cursor = 0
}
