// Package gateway simulates the payment processor: it settles every payment
// request it reads and answers with a payment result.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mikro-shop/fulfillment/pkg/events"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"github.com/mikro-shop/fulfillment/pkg/messaging"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Gateway struct {
	requests     messaging.Consumer
	results      messaging.Producer
	status       StatusSource
	retryBackoff time.Duration
	log          *zap.Logger
}

func NewGateway(requests messaging.Consumer, results messaging.Producer, status StatusSource, log *zap.Logger) *Gateway {
	return &Gateway{
		requests:     requests,
		results:      results,
		status:       status,
		retryBackoff: time.Second,
		log:          log,
	}
}

func (g *Gateway) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		g.processMessage(ctx)
	}
}

func (g *Gateway) Close() {
	if err := g.requests.Close(); err != nil {
		g.log.Error("error closing kafka reader", zap.Error(err))
	}
	if err := g.results.Close(); err != nil {
		g.log.Error("error closing kafka writer", zap.Error(err))
	}
}

func (g *Gateway) processMessage(ctx context.Context) {
	m, err := g.requests.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		g.log.Error("error reading payment request", zap.Error(err))
		select {
		case <-time.After(g.retryBackoff):
		case <-ctx.Done():
		}
		return
	}

	if err := g.settle(ctx, m); err != nil {
		g.log.Error("failed to settle payment",
			zap.ByteString("key", m.Key),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}
}

// settle decides the outcome of one payment request and publishes it.
// Malformed requests are dropped.
func (g *Gateway) settle(ctx context.Context, m kafka.Message) error {
	ctx = messaging.ExtractTrace(ctx, &m)
	log := logger.WithContext(ctx, g.log)

	var req events.PaymentRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		log.Warn("skipping malformed payment request", zap.Error(err))
		return nil
	}

	result := events.PaymentResult{OrderID: req.OrderID, Status: g.status.Status()}
	msg, err := messaging.NewJSONMessage(ctx, req.OrderID, result)
	if err != nil {
		return err
	}
	if err := g.results.WriteMessages(ctx, msg); err != nil {
		metrics.PublishFailures.WithLabelValues(events.TopicPaymentResults).Inc()
		return fmt.Errorf("publish payment result for order %d: %w", req.OrderID, err)
	}

	metrics.PaymentsSettled.WithLabelValues(result.Status).Inc()
	log.Info("payment settled",
		zap.Int64("order_id", req.OrderID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("status", result.Status),
		zap.String("transaction_id", "TXN-"+uuid.NewString()))
	return nil
}
