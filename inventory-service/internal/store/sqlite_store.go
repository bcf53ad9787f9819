package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore has no row locks, so decrements are compare-and-swap updates
// on the observed counters, retried a bounded number of times. Writers in
// this process are additionally serialised per product.
type SQLiteStore struct {
	db    *sql.DB
	locks *keyedMutex
	opts  options
}

func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// one connection keeps ":memory:" databases shared and writes serial
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db, locks: newKeyedMutex(), opts: buildOptions(opts)}, nil
}

func (s *SQLiteStore) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const sqliteProductColumns = `id, name, stock, reserved, price, owner_username, created_at, updated_at`

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	now := s.opts.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (name, stock, reserved, price, owner_username, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?, ?, ?)`,
		p.Name, p.Stock, p.Price.String(), p.OwnerUsername, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read product id: %w", err)
	}
	return s.GetProduct(ctx, id)
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProductColumns+` FROM products WHERE id = ?`, id))
}

func (s *SQLiteStore) ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteProductColumns+` FROM products ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}
	return products, total, nil
}

func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	unlock := s.locks.lock(p.ID)
	defer unlock()

	current, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if p.Stock < current.Reserved {
		return nil, ErrStockBelowReserved
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET name = ?, price = ?, stock = ?, updated_at = ?
		 WHERE id = ? AND reserved <= ?`,
		p.Name, p.Price.String(), p.Stock, s.opts.now().UTC(), p.ID, p.Stock)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrStockBelowReserved
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ReduceStock reads the counters, checks availability and swaps in the new
// stock only if neither counter moved since the read.
func (s *SQLiteStore) ReduceStock(ctx context.Context, productID int64, qty int) (*domain.Product, error) {
	unlock := s.locks.lock(productID)
	defer unlock()

	for attempt := 0; attempt < s.opts.casRetries; attempt++ {
		observed, err := s.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		if observed.Available() < qty {
			return nil, insufficientStock(productID, observed.Available(), qty)
		}

		swapped, err := s.compareAndSwap(ctx, observed, observed.Stock-qty, observed.Reserved)
		if err != nil {
			return nil, err
		}
		if swapped {
			return s.GetProduct(ctx, productID)
		}
	}
	return nil, concurrentReduction(productID, qty)
}

func (s *SQLiteStore) compareAndSwap(ctx context.Context, observed *domain.Product, stock, reserved int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = ?, reserved = ?, updated_at = ?
		 WHERE id = ? AND stock = ? AND reserved = ?`,
		stock, reserved, s.opts.now().UTC(), observed.ID, observed.Stock, observed.Reserved)
	if err != nil {
		return false, fmt.Errorf("swap stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap stock: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Reserve(ctx context.Context, productID int64, qty int) (*domain.Reservation, error) {
	unlock := s.locks.lock(productID)
	defer unlock()

	for attempt := 0; attempt < s.opts.casRetries; attempt++ {
		observed, err := s.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		if observed.Available() < qty {
			return nil, insufficientStock(productID, observed.Available(), qty)
		}

		swapped, err := s.compareAndSwap(ctx, observed, observed.Stock, observed.Reserved+qty)
		if err != nil {
			return nil, err
		}
		if !swapped {
			continue
		}

		now := s.opts.now().UTC()
		r := &domain.Reservation{
			ID:        uuid.New().String(),
			ProductID: productID,
			Quantity:  qty,
			Status:    domain.StatusReserved,
			CreatedAt: now,
			ExpiresAt: now.Add(s.opts.reservationTTL),
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO reservations (id, product_id, quantity, status, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.ProductID, r.Quantity, string(r.Status), r.CreatedAt, r.ExpiresAt); err != nil {
			// give the hold back, the reservation row never existed
			_, _ = s.db.ExecContext(ctx,
				`UPDATE products SET reserved = reserved - ? WHERE id = ?`, qty, productID)
			return nil, fmt.Errorf("insert reservation: %w", err)
		}
		return r, nil
	}
	return nil, concurrentReduction(productID, qty)
}

func (s *SQLiteStore) Confirm(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.settle(ctx, reservationID, domain.StatusConfirmed)
}

func (s *SQLiteStore) Release(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.settle(ctx, reservationID, domain.StatusReleased)
}

func (s *SQLiteStore) getReservation(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id string) (*domain.Reservation, error) {
	return scanReservation(q.QueryRowContext(ctx,
		`SELECT id, product_id, quantity, status, created_at, expires_at FROM reservations WHERE id = ?`, id))
}

func (s *SQLiteStore) settle(ctx context.Context, reservationID string, to domain.ReservationStatus) (*domain.Reservation, error) {
	r, err := s.getReservation(ctx, s.db, reservationID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(r.ProductID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// the status guard makes a concurrent settle of the same hold a no-op
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ? WHERE id = ? AND status = ?`,
		string(to), reservationID, string(domain.StatusReserved))
	if err != nil {
		return nil, fmt.Errorf("update reservation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidStatus
	}
	if to == domain.StatusConfirmed && r.IsExpiredAt(s.opts.now()) {
		return nil, ErrReservationExpired
	}

	stockDelta := 0
	if to == domain.StatusConfirmed {
		stockDelta = r.Quantity
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - ?, reserved = reserved - ?, updated_at = ? WHERE id = ?`,
		stockDelta, r.Quantity, s.opts.now().UTC(), r.ProductID); err != nil {
		return nil, fmt.Errorf("settle reservation stock: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	r.Status = to
	return r, nil
}

func (s *SQLiteStore) ExpireReservations(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, quantity, status, created_at, expires_at FROM reservations WHERE status = ?`,
		string(domain.StatusReserved))
	if err != nil {
		return 0, fmt.Errorf("query reservations: %w", err)
	}
	var stale []*domain.Reservation
	now := s.opts.now()
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if r.IsExpiredAt(now) {
			stale = append(stale, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("row iteration error: %w", err)
	}

	expired := 0
	for _, r := range stale {
		_, err := s.settle(ctx, r.ID, domain.StatusExpired)
		if errors.Is(err, ErrInvalidStatus) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
