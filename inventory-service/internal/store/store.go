package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikro-shop/fulfillment/inventory-service/internal/domain"
)

// Common errors returned by the store
var (
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrStockBelowReserved  = errors.New("stock cannot be set below the reserved quantity")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationExpired  = errors.New("reservation has expired")
	ErrInvalidStatus       = errors.New("invalid reservation status for this operation")
)

// InsufficientStockError is returned by ReduceStock and Reserve. It matches
// ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID  int64
	Available  int
	Requested  int
	Concurrent bool // the pre-check passed but the conditional update lost a race
}

func (e *InsufficientStockError) Error() string {
	if e.Concurrent {
		return "Concurrent stock reduction occurred, please try again"
	}
	return fmt.Sprintf("Insufficient stock for product %d. Available: %d, Requested: %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func insufficientStock(productID int64, available, requested int) error {
	return &InsufficientStockError{ProductID: productID, Available: available, Requested: requested}
}

func concurrentReduction(productID int64, requested int) error {
	return &InsufficientStockError{ProductID: productID, Requested: requested, Concurrent: true}
}

// InventoryStore is the stock ledger. ReduceStock and Reserve are the only
// operations that decrement availability and both are atomic per product:
// concurrent callers never drive Stock below zero or Reserved above Stock.
type InventoryStore interface {
	CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	// ListProducts returns one page ordered by id plus the total product count
	ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int, error)
	// UpdateProduct overwrites name, price and stock
	UpdateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	// ReduceStock decrements stock by qty and returns the product after the
	// decrement. Fails with *InsufficientStockError when availability is short.
	ReduceStock(ctx context.Context, productID int64, qty int) (*domain.Product, error)

	// Reserve holds qty units until Confirm, Release or expiry
	Reserve(ctx context.Context, productID int64, qty int) (*domain.Reservation, error)
	// Confirm turns a hold into a permanent decrement
	Confirm(ctx context.Context, reservationID string) (*domain.Reservation, error)
	// Release returns held units to the available pool
	Release(ctx context.Context, reservationID string) (*domain.Reservation, error)
	// ExpireReservations releases every hold past its deadline
	ExpireReservations(ctx context.Context) (int, error)

	Close() error
}

const (
	// DefaultReservationTTL is how long a reservation is valid before auto-expiring
	DefaultReservationTTL = 5 * time.Minute

	// DefaultCleanupInterval is how often the janitor expires reservations
	DefaultCleanupInterval = 30 * time.Second
)

type options struct {
	reservationTTL time.Duration
	now            func() time.Time
	casRetries     int
}

type Option func(*options)

func WithReservationTTL(ttl time.Duration) Option {
	return func(o *options) { o.reservationTTL = ttl }
}

// WithClock replaces time.Now, used by tests to drive expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCASRetries bounds compare-and-swap attempts on stores without row locks.
func WithCASRetries(n int) Option {
	return func(o *options) { o.casRetries = n }
}

func buildOptions(opts []Option) options {
	o := options{
		reservationTTL: DefaultReservationTTL,
		now:            time.Now,
		casRetries:     5,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.casRetries < 1 {
		o.casRetries = 1
	}
	return o
}
