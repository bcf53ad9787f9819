package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
)

// MemoryRepository keeps orders in process. Returned orders are copies.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[int64]*domain.Order
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[int64]*domain.Order),
		now:    time.Now,
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, order *domain.Order) error {
	if err := checkTotal(order); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.now()
	order.ID = r.nextID
	order.CreatedAt = now
	order.UpdatedAt = now
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) GetByIDAndCustomer(ctx context.Context, id int64, customerID string) (*domain.Order, error) {
	o, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (r *MemoryRepository) ListByCustomer(_ context.Context, customerID string) ([]*domain.Order, error) {
	return r.filter(func(o *domain.Order) bool { return o.CustomerID == customerID }, func(a, b *domain.Order) bool {
		return a.ID < b.ID
	}, 0), nil
}

func (r *MemoryRepository) ListStale(_ context.Context, status domain.OrderStatus, olderThan time.Time, afterID int64, limit int) ([]*domain.Order, error) {
	return r.filter(func(o *domain.Order) bool {
		return o.ID > afterID && o.Status == status && o.UpdatedAt.Before(olderThan)
	}, func(a, b *domain.Order) bool {
		return a.ID < b.ID
	}, limit), nil
}

func (r *MemoryRepository) filter(keep func(*domain.Order) bool, less func(a, b *domain.Order) bool, limit int) []*domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.Order{}
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) UpdateStatusIf(_ context.Context, id int64, from, to domain.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = r.now()
	return true, nil
}

func (r *MemoryRepository) Close() error { return nil }
