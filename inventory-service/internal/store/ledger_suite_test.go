package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikro-shop/fulfillment/inventory-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T, opts ...Option) InventoryStore

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Millisecond)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seedProduct(t *testing.T, s InventoryStore, name string, stock int) *domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), &domain.Product{
		Name:          name,
		Stock:         stock,
		Price:         decimal.RequireFromString("25.50"),
		OwnerUsername: "alice",
	})
	require.NoError(t, err)
	return p
}

// runLedgerSuite exercises the behaviour every InventoryStore must share.
func runLedgerSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		created := seedProduct(t, s, "Laptop", 10)

		assert.NotZero(t, created.ID)
		got, err := s.GetProduct(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Laptop", got.Name)
		assert.Equal(t, 10, got.Stock)
		assert.Equal(t, 0, got.Reserved)
		assert.True(t, decimal.RequireFromString("25.50").Equal(got.Price))
		assert.Equal(t, "alice", got.OwnerUsername)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProduct(ctx, 999)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("ListPages", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"a", "b", "c"} {
			seedProduct(t, s, name, 1)
		}

		page, total, err := s.ListProducts(ctx, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, page, 2)
		assert.Equal(t, "a", page[0].Name)
		assert.Equal(t, "b", page[1].Name)

		page, _, err = s.ListProducts(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "c", page[0].Name)

		page, _, err = s.ListProducts(ctx, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		s := newStore(t)
		p := seedProduct(t, s, "Mouse", 5)

		p.Name = "Wireless Mouse"
		p.Stock = 8
		p.Price = decimal.RequireFromString("30.00")
		updated, err := s.UpdateProduct(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "Wireless Mouse", updated.Name)
		assert.Equal(t, 8, updated.Stock)

		require.NoError(t, s.DeleteProduct(ctx, p.ID))
		_, err = s.GetProduct(ctx, p.ID)
		assert.ErrorIs(t, err, ErrProductNotFound)
		assert.ErrorIs(t, s.DeleteProduct(ctx, p.ID), ErrProductNotFound)
	})

	t.Run("UpdateBelowReserved", func(t *testing.T) {
		s := newStore(t)
		p := seedProduct(t, s, "Monitor", 5)
		_, err := s.Reserve(ctx, p.ID, 4)
		require.NoError(t, err)

		p.Stock = 3
		_, err = s.UpdateProduct(ctx, p)
		assert.ErrorIs(t, err, ErrStockBelowReserved)
	})

	t.Run("ReduceStockReturnsPostDecrement", func(t *testing.T) {
		s := newStore(t)
		p := seedProduct(t, s, "Keyboard", 10)

		updated, err := s.ReduceStock(ctx, p.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, 7, updated.Stock)
		assert.Equal(t, p.ID, updated.ID)
	})

	t.Run("ReduceStockOverQuantityLeavesStock", func(t *testing.T) {
		s := newStore(t)
		p := seedProduct(t, s, "Headphones", 2)

		_, err := s.ReduceStock(ctx, p.ID, 5)
		require.ErrorIs(t, err, ErrInsufficientStock)

		var stockErr *InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, 2, stockErr.Available)
		assert.Equal(t, 5, stockErr.Requested)
		assert.Contains(t, err.Error(), "Available: 2, Requested: 5")

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Stock)
	})

	t.Run("ReduceStockMissingProduct", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ReduceStock(ctx, 424242, 1)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("ConcurrentReductionsNeverOversell", func(t *testing.T) {
		s := newStore(t)
		p := seedProduct(t, s, "Limited", 10)

		const callers = 15
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			rejected  int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ReduceStock(ctx, p.ID, 1)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ErrInsufficientStock):
					rejected++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, succeeded)
		assert.Equal(t, 5, rejected)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Stock)
	})

	t.Run("ReserveLimitsReduceStock", func(t *testing.T) {
		s := newStore(t)
		p := seedProduct(t, s, "Console", 5)

		r, err := s.Reserve(ctx, p.ID, 4)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReserved, r.Status)

		_, err = s.ReduceStock(ctx, p.ID, 2)
		assert.ErrorIs(t, err, ErrInsufficientStock)

		_, err = s.Reserve(ctx, p.ID, 2)
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("ConfirmDeductsStock", func(t *testing.T) {
		s := newStore(t)
		p := seedProduct(t, s, "Tablet", 10)

		r, err := s.Reserve(ctx, p.ID, 4)
		require.NoError(t, err)

		confirmed, err := s.Confirm(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, confirmed.Status)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, got.Stock)
		assert.Equal(t, 0, got.Reserved)

		_, err = s.Release(ctx, r.ID)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("ReleaseRestoresAvailability", func(t *testing.T) {
		s := newStore(t)
		p := seedProduct(t, s, "Camera", 3)

		r, err := s.Reserve(ctx, p.ID, 3)
		require.NoError(t, err)
		released, err := s.Release(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReleased, released.Status)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Stock)
		assert.Equal(t, 3, got.Available())

		_, err = s.Confirm(ctx, r.ID)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("UnknownReservation", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Confirm(ctx, "2b1f4a52-4a5e-4ec4-8a54-5d6f0d2b9c11")
		assert.ErrorIs(t, err, ErrReservationNotFound)
		_, err = s.Release(ctx, "2b1f4a52-4a5e-4ec4-8a54-5d6f0d2b9c11")
		assert.ErrorIs(t, err, ErrReservationNotFound)
	})

	t.Run("ExpiredReservations", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, WithClock(clock.Now), WithReservationTTL(time.Minute))
		p := seedProduct(t, s, "Drone", 5)

		stale, err := s.Reserve(ctx, p.ID, 2)
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)
		fresh, err := s.Reserve(ctx, p.ID, 1)
		require.NoError(t, err)

		_, err = s.Confirm(ctx, stale.ID)
		assert.ErrorIs(t, err, ErrReservationExpired)

		n, err := s.ExpireReservations(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Reserved)
		assert.Equal(t, 4, got.Available())

		_, err = s.Confirm(ctx, fresh.ID)
		require.NoError(t, err)
	})
}
