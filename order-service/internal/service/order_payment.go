package service

import (
	"context"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"go.uber.org/zap"
)

// requestPayment hands the order to the settlement bridge. A failed publish
// leaves the order CREATED; it is logged and not retried here.
func (s *OrderServiceImpl) requestPayment(ctx context.Context, order *domain.Order) {
	if err := s.payments.Publish(ctx, order); err != nil {
		logger.WithContext(ctx, s.log).Error("failed to request payment",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}
