// Package consumer applies payment results from the broker to stored orders.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/order-service/internal/repository"
	"github.com/mikro-shop/fulfillment/pkg/events"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"github.com/mikro-shop/fulfillment/pkg/messaging"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	outcomeApplied   = "applied"
	outcomeMissing   = "order_missing"
	outcomeDuplicate = "duplicate"
	outcomeStale     = "stale"
	outcomeMalformed = "malformed"
)

// Reconciler consumes payment results and sets the order status.
//
// By default the latest result wins, whatever the current status. In strict
// mode only a CREATED order changes, and results already seen for an order
// are dropped.
type Reconciler struct {
	reader       messaging.Consumer
	repo         repository.OrderRepository
	dedup        Deduplicator
	strict       bool
	retryBackoff time.Duration
	log          *zap.Logger
}

type Option func(*Reconciler)

// WithStrict enables conditional updates. dedup may be nil.
func WithStrict(dedup Deduplicator) Option {
	return func(r *Reconciler) {
		r.strict = true
		r.dedup = dedup
	}
}

func NewReconciler(reader messaging.Consumer, repo repository.OrderRepository, log *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		reader:       reader,
		repo:         repo,
		retryBackoff: time.Second,
		log:          log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		r.processMessage(ctx)
	}
}

func (r *Reconciler) Close() {
	if err := r.reader.Close(); err != nil {
		r.log.Error("error closing kafka reader", zap.Error(err))
	}
}

func (r *Reconciler) processMessage(ctx context.Context) {
	m, err := r.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		r.log.Error("error reading payment result", zap.Error(err))
		select {
		case <-time.After(r.retryBackoff):
		case <-ctx.Done():
		}
		return
	}

	if err := r.handle(ctx, m); err != nil {
		r.log.Error("failed to apply payment result",
			zap.ByteString("key", m.Key),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}
}

func (r *Reconciler) handle(ctx context.Context, m kafka.Message) error {
	ctx = messaging.ExtractTrace(ctx, &m)
	log := logger.WithContext(ctx, r.log)

	var result events.PaymentResult
	if err := json.Unmarshal(m.Value, &result); err != nil {
		metrics.PaymentResultsApplied.WithLabelValues(outcomeMalformed).Inc()
		log.Warn("skipping malformed payment result", zap.Error(err))
		return nil
	}

	outcome, err := r.apply(ctx, result)
	if err != nil {
		return err
	}
	metrics.PaymentResultsApplied.WithLabelValues(outcome).Inc()
	log.Info("payment result processed",
		zap.Int64("order_id", result.OrderID),
		zap.String("status", result.Status),
		zap.String("outcome", outcome))
	return nil
}

func (r *Reconciler) apply(ctx context.Context, result events.PaymentResult) (string, error) {
	status := domain.ParsePaymentStatus(result.Status)

	if !r.strict {
		err := r.repo.UpdateStatus(ctx, result.OrderID, status)
		if errors.Is(err, repository.ErrOrderNotFound) {
			return outcomeMissing, nil
		}
		if err != nil {
			return "", fmt.Errorf("update order %d: %w", result.OrderID, err)
		}
		return outcomeApplied, nil
	}

	if r.dedup != nil {
		first, err := r.dedup.Claim(ctx, result.OrderID)
		switch {
		case err != nil:
			// The conditional update below still keeps the first result.
			r.log.Warn("dedup unavailable", zap.Int64("order_id", result.OrderID), zap.Error(err))
		case !first:
			return outcomeDuplicate, nil
		}
	}

	changed, err := r.repo.UpdateStatusIf(ctx, result.OrderID, domain.OrderStatusCreated, status)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return outcomeMissing, nil
	}
	if err != nil {
		r.forget(ctx, result.OrderID)
		return "", fmt.Errorf("update order %d: %w", result.OrderID, err)
	}
	if !changed {
		return outcomeStale, nil
	}
	return outcomeApplied, nil
}

func (r *Reconciler) forget(ctx context.Context, orderID int64) {
	if r.dedup == nil {
		return
	}
	if err := r.dedup.Forget(ctx, orderID); err != nil {
		r.log.Warn("failed to drop dedup claim", zap.Int64("order_id", orderID), zap.Error(err))
	}
}
