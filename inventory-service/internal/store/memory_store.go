package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/domain"
)

// productEntry guards one product. Operations on different products never
// share a lock.
type productEntry struct {
	mu      sync.Mutex
	product domain.Product
	stock   atomic.Int64 // authoritative counter, product.Stock is refreshed from it
	deleted bool
}

func (e *productEntry) snapshot() domain.Product {
	p := e.product
	p.Stock = int(e.stock.Load())
	return p
}

// MemoryStore implements InventoryStore with in-memory storage
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]*productEntry
	nextID   int64

	resMu        sync.Mutex
	reservations map[string]*domain.Reservation // reservationID -> reservation

	opts options
}

// NewMemoryStore creates a new in-memory inventory store
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		products:     make(map[int64]*productEntry),
		reservations: make(map[string]*domain.Reservation),
		opts:         buildOptions(opts),
	}
}

func (s *MemoryStore) entry(id int64) (*productEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return e, nil
}

func (s *MemoryStore) CreateProduct(_ context.Context, p *domain.Product) (*domain.Product, error) {
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	e := &productEntry{product: *p}
	e.product.ID = s.nextID
	e.product.Reserved = 0
	e.product.CreatedAt = now
	e.product.UpdatedAt = now
	e.stock.Store(int64(p.Stock))
	s.products[e.product.ID] = e

	out := e.snapshot()
	return &out, nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrProductNotFound
	}
	p := e.snapshot()
	return &p, nil
}

func (s *MemoryStore) ListProducts(_ context.Context, offset, limit int) ([]domain.Product, int, error) {
	s.mu.RLock()
	entries := make([]*productEntry, 0, len(s.products))
	for _, e := range s.products {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].product.ID < entries[j].product.ID })

	total := len(entries)
	if offset >= total {
		return []domain.Product{}, total, nil
	}
	end := min(offset+limit, total)

	page := make([]domain.Product, 0, end-offset)
	for _, e := range entries[offset:end] {
		e.mu.Lock()
		page = append(page, e.snapshot())
		e.mu.Unlock()
	}
	return page, total, nil
}

func (s *MemoryStore) UpdateProduct(_ context.Context, p *domain.Product) (*domain.Product, error) {
	e, err := s.entry(p.ID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrProductNotFound
	}
	if p.Stock < e.product.Reserved {
		return nil, ErrStockBelowReserved
	}

	e.product.Name = p.Name
	e.product.Price = p.Price
	e.product.UpdatedAt = s.opts.now()
	e.stock.Store(int64(p.Stock))

	out := e.snapshot()
	return &out, nil
}

func (s *MemoryStore) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	e, ok := s.products[id]
	if ok {
		delete(s.products, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrProductNotFound
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

// ReduceStock checks availability under the product lock and then applies
// the decrement with a compare-and-swap on the counter.
func (s *MemoryStore) ReduceStock(_ context.Context, productID int64, qty int) (*domain.Product, error) {
	e, err := s.entry(productID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrProductNotFound
	}

	observed := e.stock.Load()
	if available := int(observed) - e.product.Reserved; available < qty {
		return nil, insufficientStock(productID, available, qty)
	}
	if !e.stock.CompareAndSwap(observed, observed-int64(qty)) {
		return nil, concurrentReduction(productID, qty)
	}
	e.product.UpdatedAt = s.opts.now()

	out := e.snapshot()
	return &out, nil
}

// Reserve creates a new hold on a single product
func (s *MemoryStore) Reserve(_ context.Context, productID int64, qty int) (*domain.Reservation, error) {
	e, err := s.entry(productID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, ErrProductNotFound
	}
	if available := int(e.stock.Load()) - e.product.Reserved; available < qty {
		e.mu.Unlock()
		return nil, insufficientStock(productID, available, qty)
	}
	e.product.Reserved += qty
	e.mu.Unlock()

	now := s.opts.now()
	reservation := &domain.Reservation{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  qty,
		Status:    domain.StatusReserved,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.reservationTTL),
	}

	s.resMu.Lock()
	s.reservations[reservation.ID] = reservation
	s.resMu.Unlock()

	out := *reservation
	return &out, nil
}

// Confirm finalizes a reservation, permanently deducting stock
func (s *MemoryStore) Confirm(_ context.Context, reservationID string) (*domain.Reservation, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	reservation, exists := s.reservations[reservationID]
	if !exists {
		return nil, ErrReservationNotFound
	}
	if reservation.Status != domain.StatusReserved {
		return nil, ErrInvalidStatus
	}
	if reservation.IsExpiredAt(s.opts.now()) {
		return nil, ErrReservationExpired
	}

	s.adjust(reservation, true)
	reservation.Status = domain.StatusConfirmed
	out := *reservation
	return &out, nil
}

// Release cancels a reservation, returning stock to the available pool
func (s *MemoryStore) Release(_ context.Context, reservationID string) (*domain.Reservation, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	reservation, exists := s.reservations[reservationID]
	if !exists {
		return nil, ErrReservationNotFound
	}
	if reservation.Status != domain.StatusReserved {
		return nil, ErrInvalidStatus
	}

	s.adjust(reservation, false)
	reservation.Status = domain.StatusReleased
	out := *reservation
	return &out, nil
}

// ExpireReservations finds and expires all reservations past their TTL
func (s *MemoryStore) ExpireReservations(_ context.Context) (int, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()

	now := s.opts.now()
	expired := 0
	for _, reservation := range s.reservations {
		if reservation.Status == domain.StatusReserved && reservation.IsExpiredAt(now) {
			s.adjust(reservation, false)
			reservation.Status = domain.StatusExpired
			expired++
		}
	}
	return expired, nil
}

// adjust drops the hold of r and, when commit is set, the stock it held.
// Caller holds resMu.
func (s *MemoryStore) adjust(r *domain.Reservation, commit bool) {
	e, err := s.entry(r.ProductID)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.product.Reserved -= r.Quantity
	if commit {
		e.stock.Add(-int64(r.Quantity))
	}
	e.product.UpdatedAt = s.opts.now()
}

func (s *MemoryStore) Close() error {
	return nil
}
