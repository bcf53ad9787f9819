package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/order-service/internal/reservation"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"go.uber.org/zap"
)

func (s *OrderServiceImpl) createWithReservations(ctx context.Context, customerID string, items []ItemRequest) (*domain.Order, error) {
	lines := make([]domain.OrderItem, 0, len(items))
	held := make([]*reservation.Reservation, 0, len(items))

	for _, it := range items {
		snap, err := s.snapshot(ctx, it.ProductID)
		if err != nil {
			s.releaseAll(ctx, held)
			return nil, err
		}

		res, err := s.inventory.Reserve(ctx, it.ProductID, it.Quantity)
		if err != nil {
			s.releaseAll(ctx, held)
			return nil, reserveError(it.ProductID, err)
		}
		held = append(held, res)

		lines = append(lines, domain.NewOrderItem(it.ProductID, snap.Product.Name, it.Quantity, snap.Product.Price))
	}

	order, err := s.persist(ctx, customerID, lines)
	if err != nil {
		s.releaseAll(ctx, held)
		return nil, err
	}

	s.confirmAll(ctx, order.ID, held)
	return order, nil
}

func reserveError(productID int64, err error) error {
	var remote *reservation.RemoteError
	switch {
	case errors.As(err, &remote):
		return &ItemError{Kind: ErrStockReductionFailed, ProductID: productID, Message: remote.Error()}
	case errors.Is(err, reservation.ErrUnavailable):
		return &ItemError{Kind: ErrProductUnavailable, ProductID: productID}
	}
	return fmt.Errorf("reserve product %d: %w", productID, err)
}

// releaseAll undoes earlier holds. It runs even when the request context is
// already cancelled.
func (s *OrderServiceImpl) releaseAll(ctx context.Context, held []*reservation.Reservation) {
	log := logger.WithContext(ctx, s.log)
	ctx = context.WithoutCancel(ctx)
	for _, r := range held {
		if _, err := s.inventory.Release(ctx, r.ID); err != nil {
			log.Error("failed to release reservation; it will expire",
				zap.String("reservation_id", r.ID),
				zap.Int64("product_id", r.ProductID),
				zap.Error(err))
		}
	}
}

func (s *OrderServiceImpl) confirmAll(ctx context.Context, orderID int64, held []*reservation.Reservation) {
	log := logger.WithContext(ctx, s.log)
	ctx = context.WithoutCancel(ctx)
	for _, r := range held {
		if _, err := s.inventory.Confirm(ctx, r.ID); err != nil {
			log.Error("failed to confirm reservation",
				zap.Int64("order_id", orderID),
				zap.String("reservation_id", r.ID),
				zap.Int64("product_id", r.ProductID),
				zap.Error(err))
		}
	}
}
