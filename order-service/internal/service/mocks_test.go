package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/order-service/internal/repository"
	"github.com/mikro-shop/fulfillment/order-service/internal/reservation"
	"github.com/shopspring/decimal"
)

type fakeProduct struct {
	name  string
	price decimal.Decimal
	stock int
}

// FakeInventory is an in-process ledger answering the way the remote client
// does: business rejections as *reservation.RemoteError, outages as
// degraded snapshots.
type FakeInventory struct {
	mu           sync.Mutex
	products     map[int64]*fakeProduct
	Down         bool
	held         map[string]reservation.Reservation
	nextRes      int
	Decrements   []int64
	Confirmed    []string
	Released     []string
	ReserveCalls int
}

func NewFakeInventory() *FakeInventory {
	return &FakeInventory{
		products: map[int64]*fakeProduct{},
		held:     map[string]reservation.Reservation{},
	}
}

func (f *FakeInventory) Add(id int64, name, price string, stock int) {
	f.products[id] = &fakeProduct{name: name, price: decimal.RequireFromString(price), stock: stock}
}

func (f *FakeInventory) Stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].stock
}

func notFound(id int64) error {
	return &reservation.RemoteError{
		Status:  http.StatusNotFound,
		Title:   "Product Not Found",
		Message: fmt.Sprintf("Product not found with id: %d", id),
	}
}

func insufficient(id int64, available, requested int) error {
	return &reservation.RemoteError{
		Status:  http.StatusBadRequest,
		Title:   "Insufficient Stock",
		Message: fmt.Sprintf("Insufficient stock for product %d. Available: %d, Requested: %d", id, available, requested),
	}
}

func (f *FakeInventory) Snapshot(_ context.Context, id int64) (reservation.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return reservation.Snapshot{
			Product:  reservation.Product{ID: id, Name: reservation.UnavailableProductName},
			Degraded: true,
		}, nil
	}
	p, ok := f.products[id]
	if !ok {
		return reservation.Snapshot{}, notFound(id)
	}
	return reservation.Snapshot{Product: reservation.Product{ID: id, Name: p.name, Stock: p.stock, Price: p.price}}, nil
}

func (f *FakeInventory) Decrement(_ context.Context, id int64, qty int) (reservation.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return reservation.Snapshot{
			Product:  reservation.Product{ID: id, Name: reservation.DecrementFailedName},
			Degraded: true,
		}, nil
	}
	p, ok := f.products[id]
	if !ok {
		return reservation.Snapshot{}, notFound(id)
	}
	if p.stock < qty {
		return reservation.Snapshot{}, insufficient(id, p.stock, qty)
	}
	p.stock -= qty
	f.Decrements = append(f.Decrements, id)
	return reservation.Snapshot{Product: reservation.Product{ID: id, Name: p.name, Stock: p.stock, Price: p.price}}, nil
}

func (f *FakeInventory) Reserve(_ context.Context, id int64, qty int) (*reservation.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReserveCalls++
	if f.Down {
		return nil, fmt.Errorf("%w: reserve: connection refused", reservation.ErrUnavailable)
	}
	p, ok := f.products[id]
	if !ok {
		return nil, notFound(id)
	}
	if p.stock < qty {
		return nil, insufficient(id, p.stock, qty)
	}
	p.stock -= qty
	f.nextRes++
	r := reservation.Reservation{ID: fmt.Sprintf("res-%d", f.nextRes), ProductID: id, Quantity: qty, Status: "reserved"}
	f.held[r.ID] = r
	return &r, nil
}

func (f *FakeInventory) Confirm(_ context.Context, id string) (*reservation.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.held[id]
	if !ok {
		return nil, errors.New("unknown reservation")
	}
	delete(f.held, id)
	f.Confirmed = append(f.Confirmed, id)
	r.Status = "confirmed"
	return &r, nil
}

func (f *FakeInventory) Release(_ context.Context, id string) (*reservation.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.held[id]
	if !ok {
		return nil, errors.New("unknown reservation")
	}
	delete(f.held, id)
	f.products[r.ProductID].stock += r.Quantity
	f.Released = append(f.Released, id)
	r.Status = "released"
	return &r, nil
}

// MockPublisher records published orders.
type MockPublisher struct {
	Published []*domain.Order
	Err       error
}

func (m *MockPublisher) Publish(_ context.Context, order *domain.Order) error {
	m.Published = append(m.Published, order)
	return m.Err
}

// FailingRepository fails Create and delegates everything else.
type FailingRepository struct {
	*repository.MemoryRepository
	CreateErr error
}

func (m *FailingRepository) Create(_ context.Context, _ *domain.Order) error {
	return m.CreateErr
}
