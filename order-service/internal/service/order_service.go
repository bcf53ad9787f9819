package service

import (
	"context"
	"fmt"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/order-service/internal/repository"
	"github.com/mikro-shop/fulfillment/order-service/internal/reservation"
	"go.uber.org/zap"
)

// SagaMode selects how stock is taken from the ledger while an order is built.
type SagaMode string

const (
	// SagaDirect decrements stock item by item. Decrements made before a
	// failing item stay applied.
	SagaDirect SagaMode = "direct"
	// SagaReservation holds stock with expiring reservations, releases them
	// when the order is aborted and confirms them once it is persisted.
	SagaReservation SagaMode = "reservation"
)

func ParseSagaMode(s string) (SagaMode, error) {
	switch SagaMode(s) {
	case SagaDirect, SagaReservation:
		return SagaMode(s), nil
	}
	return "", fmt.Errorf("unknown saga mode %q", s)
}

type Options struct {
	Mode SagaMode
	// AbortOnDegraded rejects the order instead of pricing a line from a
	// fallback placeholder.
	AbortOnDegraded bool
}

type Inventory interface {
	Snapshot(ctx context.Context, productID int64) (reservation.Snapshot, error)
	Decrement(ctx context.Context, productID int64, qty int) (reservation.Snapshot, error)
	Reserve(ctx context.Context, productID int64, qty int) (*reservation.Reservation, error)
	Confirm(ctx context.Context, reservationID string) (*reservation.Reservation, error)
	Release(ctx context.Context, reservationID string) (*reservation.Reservation, error)
}

type PaymentPublisher interface {
	Publish(ctx context.Context, order *domain.Order) error
}

type ItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type OrderService interface {
	Create(ctx context.Context, customerID string, items []ItemRequest) (*domain.Order, error)
	Get(ctx context.Context, id int64, customerID string) (*domain.Order, error)
	ListMine(ctx context.Context, customerID string) ([]*domain.Order, error)
}

type OrderServiceImpl struct {
	repo      repository.OrderRepository
	inventory Inventory
	payments  PaymentPublisher
	opts      Options
	log       *zap.Logger
}

func NewOrderService(repo repository.OrderRepository, inventory Inventory, payments PaymentPublisher, opts Options, log *zap.Logger) *OrderServiceImpl {
	if opts.Mode == "" {
		opts.Mode = SagaDirect
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderServiceImpl{
		repo:      repo,
		inventory: inventory,
		payments:  payments,
		opts:      opts,
		log:       log,
	}
}

func validate(items []ItemRequest) error {
	fields := map[string]string{}
	if len(items) == 0 {
		fields["items"] = "must not be empty"
	}
	for i, it := range items {
		if it.ProductID < 1 {
			fields[fmt.Sprintf("items[%d].productId", i)] = "must be at least 1"
		}
		if it.Quantity < 1 {
			fields[fmt.Sprintf("items[%d].quantity", i)] = "must be at least 1"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
