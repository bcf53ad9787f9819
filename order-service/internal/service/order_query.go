package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/order-service/internal/repository"
)

// Get returns the order only when it belongs to customerID.
func (s *OrderServiceImpl) Get(ctx context.Context, id int64, customerID string) (*domain.Order, error) {
	order, err := s.repo.GetByIDAndCustomer(ctx, id, customerID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return order, nil
}

func (s *OrderServiceImpl) ListMine(ctx context.Context, customerID string) ([]*domain.Order, error) {
	orders, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
