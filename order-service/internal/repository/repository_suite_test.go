package repository

import (
	"context"
	"testing"
	"time"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repoFactory func(t *testing.T) OrderRepository

func newTestOrder(customerID string, prices ...string) *domain.Order {
	items := make([]domain.OrderItem, 0, len(prices))
	for i, p := range prices {
		items = append(items, domain.NewOrderItem(int64(i+1), "Item", 2, decimal.RequireFromString(p)))
	}
	return &domain.Order{
		CustomerID:  customerID,
		Items:       items,
		TotalAmount: domain.Total(items),
		Status:      domain.OrderStatusCreated,
	}
}

// runRepositorySuite exercises the behaviour every OrderRepository must share.
func runRepositorySuite(t *testing.T, newRepo repoFactory) {
	ctx := context.Background()

	t.Run("CreateAssignsIDs", func(t *testing.T) {
		repo := newRepo(t)
		first := newTestOrder("alice", "10.00")
		second := newTestOrder("alice", "5.25")

		require.NoError(t, repo.Create(ctx, first))
		require.NoError(t, repo.Create(ctx, second))

		assert.NotZero(t, first.ID)
		assert.Greater(t, second.ID, first.ID)
		assert.False(t, first.CreatedAt.IsZero())

		fetched, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", fetched.CustomerID)
		assert.Equal(t, domain.OrderStatusCreated, fetched.Status)
		assert.True(t, decimal.RequireFromString("20.00").Equal(fetched.TotalAmount))
		require.Len(t, fetched.Items, 1)
		assert.True(t, decimal.RequireFromString("10.00").Equal(fetched.Items[0].UnitPrice))
		assert.True(t, decimal.RequireFromString("20.00").Equal(fetched.Items[0].TotalPrice))
	})

	t.Run("CreateRejectsTotalMismatch", func(t *testing.T) {
		repo := newRepo(t)
		order := newTestOrder("alice", "10.00")
		order.TotalAmount = decimal.RequireFromString("19.99")

		err := repo.Create(ctx, order)
		assert.ErrorIs(t, err, ErrTotalMismatch)
		assert.Zero(t, order.ID)
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, 4242)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("GetByIDAndCustomerHidesForeignOrders", func(t *testing.T) {
		repo := newRepo(t)
		order := newTestOrder("alice", "10.00")
		require.NoError(t, repo.Create(ctx, order))

		got, err := repo.GetByIDAndCustomer(ctx, order.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)

		_, err = repo.GetByIDAndCustomer(ctx, order.ID, "mallory")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("ListByCustomerAscending", func(t *testing.T) {
		repo := newRepo(t)
		var ids []int64
		for i := 0; i < 3; i++ {
			o := newTestOrder("bob", "1.00")
			require.NoError(t, repo.Create(ctx, o))
			ids = append(ids, o.ID)
			require.NoError(t, repo.Create(ctx, newTestOrder("carol", "2.00")))
		}

		orders, err := repo.ListByCustomer(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, orders, 3)
		for i, o := range orders {
			assert.Equal(t, ids[i], o.ID)
		}

		again, err := repo.ListByCustomer(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, orders[0].ID, again[0].ID)

		none, err := repo.ListByCustomer(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("UpdateStatusTouchesOnlyStatus", func(t *testing.T) {
		repo := newRepo(t)
		order := newTestOrder("alice", "10.00", "3.50")
		require.NoError(t, repo.Create(ctx, order))

		require.NoError(t, repo.UpdateStatus(ctx, order.ID, domain.OrderStatusPaid))

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPaid, got.Status)
		assert.True(t, order.TotalAmount.Equal(got.TotalAmount))
		assert.Len(t, got.Items, 2)
		assert.Equal(t, "alice", got.CustomerID)

		assert.ErrorIs(t, repo.UpdateStatus(ctx, 999, domain.OrderStatusPaid), ErrOrderNotFound)
	})

	t.Run("UpdateStatusIf", func(t *testing.T) {
		repo := newRepo(t)
		order := newTestOrder("alice", "10.00")
		require.NoError(t, repo.Create(ctx, order))

		ok, err := repo.UpdateStatusIf(ctx, order.ID, domain.OrderStatusCreated, domain.OrderStatusFailed)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.UpdateStatusIf(ctx, order.ID, domain.OrderStatusCreated, domain.OrderStatusPaid)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusFailed, got.Status)

		_, err = repo.UpdateStatusIf(ctx, 999, domain.OrderStatusCreated, domain.OrderStatusPaid)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("ListStale", func(t *testing.T) {
		repo := newRepo(t)
		pending := newTestOrder("alice", "10.00")
		paid := newTestOrder("alice", "12.00")
		require.NoError(t, repo.Create(ctx, pending))
		require.NoError(t, repo.Create(ctx, paid))
		require.NoError(t, repo.UpdateStatus(ctx, paid.ID, domain.OrderStatusPaid))

		stale, err := repo.ListStale(ctx, domain.OrderStatusCreated, time.Now().Add(time.Minute), 0, 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, pending.ID, stale[0].ID)

		fresh, err := repo.ListStale(ctx, domain.OrderStatusCreated, time.Now().Add(-time.Hour), 0, 10)
		require.NoError(t, err)
		assert.Empty(t, fresh)
	})

	t.Run("ListStalePagesByID", func(t *testing.T) {
		repo := newRepo(t)
		var ids []int64
		for i := 0; i < 5; i++ {
			o := newTestOrder("alice", "1.00")
			require.NoError(t, repo.Create(ctx, o))
			ids = append(ids, o.ID)
		}
		cutoff := time.Now().Add(time.Minute)

		first, err := repo.ListStale(ctx, domain.OrderStatusCreated, cutoff, 0, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, ids[0], first[0].ID)
		assert.Equal(t, ids[1], first[1].ID)

		rest, err := repo.ListStale(ctx, domain.OrderStatusCreated, cutoff, first[1].ID, 10)
		require.NoError(t, err)
		require.Len(t, rest, 3)
		assert.Equal(t, ids[2], rest[0].ID)
		assert.Equal(t, ids[4], rest[2].ID)
	})
}
