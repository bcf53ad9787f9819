package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/domain"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// PostgresStore serialises decrements of one product with SELECT ... FOR
// UPDATE and applies them with a conditional UPDATE in the same transaction.
type PostgresStore struct {
	db   *sql.DB
	opts options
}

func NewPostgresStore(cred *Credentials, opts ...Option) (*PostgresStore, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresStore{db: db, opts: buildOptions(opts)}, nil
}

func (s *PostgresStore) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(s.db, &postgres.Config{
		MigrationsTable: "inventory_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

const pgProductColumns = `id, name, stock, reserved, price, owner_username, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Stock, &p.Reserved, &p.Price, &p.OwnerUsername, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ID, &r.ProductID, &r.Quantity, &r.Status, &r.CreatedAt, &r.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	query := `INSERT INTO products (name, stock, price, owner_username)
	          VALUES ($1, $2, $3, $4)
	          RETURNING ` + pgProductColumns
	return scanProduct(s.db.QueryRowContext(ctx, query, p.Name, p.Stock, p.Price, p.OwnerUsername))
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + pgProductColumns + ` FROM products WHERE id = $1`
	return scanProduct(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := `SELECT ` + pgProductColumns + ` FROM products ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query products: %w", err)
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

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	query := `UPDATE products SET name = $2, price = $3, stock = $4, updated_at = NOW()
	          WHERE id = $1 AND reserved <= $4
	          RETURNING ` + pgProductColumns
	updated, err := scanProduct(s.db.QueryRowContext(ctx, query, p.ID, p.Name, p.Price, p.Stock))
	if errors.Is(err, ErrProductNotFound) {
		if _, getErr := s.GetProduct(ctx, p.ID); getErr == nil {
			return nil, ErrStockBelowReserved
		}
	}
	return updated, err
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *PostgresStore) ReduceStock(ctx context.Context, productID int64, qty int) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+pgProductColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID))
	if err != nil {
		return nil, err
	}
	if locked.Available() < qty {
		return nil, insufficientStock(productID, locked.Available(), qty)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = NOW()
		 WHERE id = $1 AND stock - reserved >= $2`, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("reduce stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, concurrentReduction(productID, qty)
	}

	updated, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+pgProductColumns+` FROM products WHERE id = $1`, productID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stock reduction: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) Reserve(ctx context.Context, productID int64, qty int) (*domain.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+pgProductColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID))
	if err != nil {
		return nil, err
	}
	if locked.Available() < qty {
		return nil, insufficientStock(productID, locked.Available(), qty)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE products SET reserved = reserved + $2, updated_at = NOW()
		 WHERE id = $1 AND stock - reserved >= $2`, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, concurrentReduction(productID, qty)
	}

	now := s.opts.now().UTC()
	reservation, err := scanReservation(tx.QueryRowContext(ctx,
		`INSERT INTO reservations (id, product_id, quantity, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, product_id, quantity, status, created_at, expires_at`,
		uuid.New(), productID, qty, string(domain.StatusReserved), now, now.Add(s.opts.reservationTTL)))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return reservation, nil
}

func (s *PostgresStore) Confirm(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.settle(ctx, reservationID, domain.StatusConfirmed)
}

func (s *PostgresStore) Release(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	return s.settle(ctx, reservationID, domain.StatusReleased)
}

// settle moves a reserved hold to a terminal status inside one transaction
func (s *PostgresStore) settle(ctx context.Context, reservationID string, to domain.ReservationStatus) (*domain.Reservation, error) {
	id, err := uuid.Parse(reservationID)
	if err != nil {
		return nil, ErrReservationNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	r, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT id, product_id, quantity, status, created_at, expires_at
		 FROM reservations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if r.Status != domain.StatusReserved {
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
		`UPDATE products SET stock = stock - $2, reserved = reserved - $3, updated_at = NOW() WHERE id = $1`,
		r.ProductID, stockDelta, r.Quantity); err != nil {
		return nil, fmt.Errorf("settle reservation stock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = $2 WHERE id = $1`, id, string(to)); err != nil {
		return nil, fmt.Errorf("update reservation status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	r.Status = to
	return r, nil
}

func (s *PostgresStore) ExpireReservations(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`UPDATE reservations SET status = $1
		 WHERE status = $2 AND expires_at < $3
		 RETURNING product_id, quantity`,
		string(domain.StatusExpired), string(domain.StatusReserved), s.opts.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}

	held := map[int64]int{}
	count := 0
	for rows.Next() {
		var productID int64
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired reservation: %w", err)
		}
		held[productID] += qty
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("row iteration error: %w", err)
	}

	for productID, qty := range held {
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET reserved = reserved - $2, updated_at = NOW() WHERE id = $1`,
			productID, qty); err != nil {
			return 0, fmt.Errorf("release expired stock: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expiry: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
