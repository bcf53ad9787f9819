package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrTotalMismatch = errors.New("order total does not match its line items")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OrderRepository interface {
	// Create assigns the order id and timestamps.
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	// GetByIDAndCustomer reports ErrOrderNotFound for foreign orders too.
	GetByIDAndCustomer(ctx context.Context, id int64, customerID string) (*domain.Order, error)
	// ListByCustomer returns the customer's orders by ascending id.
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error
	// UpdateStatusIf changes the status only while it still equals from.
	UpdateStatusIf(ctx context.Context, id int64, from, to domain.OrderStatus) (bool, error)
	// ListStale pages through orders in status last updated before olderThan,
	// by ascending id starting after afterID.
	ListStale(ctx context.Context, status domain.OrderStatus, olderThan time.Time, afterID int64, limit int) ([]*domain.Order, error)
	Close() error
}

func checkTotal(order *domain.Order) error {
	if !order.TotalAmount.Equal(domain.Total(order.Items)) {
		return fmt.Errorf("%w: total %s, items %s", ErrTotalMismatch,
			order.TotalAmount.StringFixed(2), domain.Total(order.Items).StringFixed(2))
	}
	return nil
}
