package publisher

import (
	"context"
	"fmt"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/pkg/events"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"github.com/mikro-shop/fulfillment/pkg/messaging"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"go.uber.org/zap"
)

// PaymentPublisher writes payment requests for new orders to the
// payment-requests topic, keyed by order id.
type PaymentPublisher struct {
	producer messaging.Producer
	log      *zap.Logger
}

func NewPaymentPublisher(producer messaging.Producer, log *zap.Logger) *PaymentPublisher {
	return &PaymentPublisher{producer: producer, log: log}
}

func (p *PaymentPublisher) Publish(ctx context.Context, order *domain.Order) error {
	msg, err := messaging.NewJSONMessage(ctx, order.ID, events.PaymentRequest{
		OrderID: order.ID,
		Amount:  order.TotalAmount,
	})
	if err != nil {
		return err
	}

	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		metrics.PublishFailures.WithLabelValues(events.TopicPaymentRequests).Inc()
		return fmt.Errorf("publish payment request for order %d: %w", order.ID, err)
	}

	logger.WithContext(ctx, p.log).Info("payment requested",
		zap.Int64("order_id", order.ID),
		zap.String("amount", order.TotalAmount.StringFixed(2)))
	return nil
}

func (p *PaymentPublisher) Close() error {
	return p.producer.Close()
}
