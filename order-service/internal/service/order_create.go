package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/order-service/internal/reservation"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"go.uber.org/zap"
)

// Create builds an order for customerID from items, persists it as CREATED
// and requests payment. It returns without waiting for settlement.
func (s *OrderServiceImpl) Create(ctx context.Context, customerID string, items []ItemRequest) (*domain.Order, error) {
	if err := validate(items); err != nil {
		metrics.OrdersRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	var (
		order *domain.Order
		err   error
	)
	if s.opts.Mode == SagaReservation {
		order, err = s.createWithReservations(ctx, customerID, items)
	} else {
		order, err = s.createDirect(ctx, customerID, items)
	}
	if err != nil {
		var itemErr *ItemError
		if errors.As(err, &itemErr) {
			metrics.OrdersRejected.WithLabelValues(itemErr.Kind.Error()).Inc()
		}
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.requestPayment(ctx, order)
	return order, nil
}

func (s *OrderServiceImpl) createDirect(ctx context.Context, customerID string, items []ItemRequest) (*domain.Order, error) {
	log := logger.WithContext(ctx, s.log)
	lines := make([]domain.OrderItem, 0, len(items))

	for _, it := range items {
		snap, err := s.snapshot(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}

		dec, err := s.inventory.Decrement(ctx, it.ProductID, it.Quantity)
		if err != nil {
			var remote *reservation.RemoteError
			if errors.As(err, &remote) {
				log.Info("stock reduction rejected",
					zap.Int64("product_id", it.ProductID),
					zap.Int("quantity", it.Quantity),
					zap.String("reason", remote.Message))
				return nil, &ItemError{Kind: ErrStockReductionFailed, ProductID: it.ProductID, Message: remote.Error()}
			}
			return nil, fmt.Errorf("reduce stock of product %d: %w", it.ProductID, err)
		}
		if dec.Degraded && s.opts.AbortOnDegraded {
			return nil, &ItemError{Kind: ErrProductUnavailable, ProductID: it.ProductID}
		}

		lines = append(lines, domain.NewOrderItem(it.ProductID, snap.Product.Name, it.Quantity, snap.Product.Price))
	}

	return s.persist(ctx, customerID, lines)
}

// snapshot reads the product that prices a line.
func (s *OrderServiceImpl) snapshot(ctx context.Context, productID int64) (reservation.Snapshot, error) {
	snap, err := s.inventory.Snapshot(ctx, productID)
	if err != nil {
		if errors.Is(err, reservation.ErrProductNotFound) {
			return reservation.Snapshot{}, &ItemError{Kind: ErrProductNotFound, ProductID: productID}
		}
		return reservation.Snapshot{}, fmt.Errorf("read product %d: %w", productID, err)
	}
	if snap.Degraded && s.opts.AbortOnDegraded {
		return reservation.Snapshot{}, &ItemError{Kind: ErrProductUnavailable, ProductID: productID}
	}
	return snap, nil
}

func (s *OrderServiceImpl) persist(ctx context.Context, customerID string, lines []domain.OrderItem) (*domain.Order, error) {
	order := &domain.Order{
		CustomerID:  customerID,
		Items:       lines,
		TotalAmount: domain.Total(lines),
		Status:      domain.OrderStatusCreated,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	logger.WithContext(ctx, s.log).Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("customer", customerID),
		zap.Int("items", len(lines)),
		zap.String("total", order.TotalAmount.StringFixed(2)))
	return order, nil
}
