package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikro-shop/fulfillment/inventory-service/internal/config"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/domain"
	inventoryhttp "github.com/mikro-shop/fulfillment/inventory-service/internal/http"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/store"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"github.com/mikro-shop/fulfillment/pkg/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Catalog created on first start when the ledger is empty
var initialCatalog = []domain.Product{
	{Name: "Laptop", Stock: 100, Price: decimal.RequireFromString("1299.99")},
	{Name: "Mouse", Stock: 500, Price: decimal.RequireFromString("29.99")},
	{Name: "Keyboard", Stock: 300, Price: decimal.RequireFromString("89.99")},
	{Name: "Monitor", Stock: 150, Price: decimal.RequireFromString("399.99")},
	{Name: "Headphones", Stock: 200, Price: decimal.RequireFromString("149.99")},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("inventory-service", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("inventory service failed", zap.Error(err))
	}
	log.Info("inventory service stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, "inventory-service", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	ledger, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer ledger.Close()
	log.Info("inventory store ready", zap.String("store", cfg.Store))

	if cfg.SeedCatalog {
		if err := seedCatalog(ctx, ledger, log); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      inventoryhttp.NewRouter(ledger, cfg.RequestTimeout, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store.NewJanitor(ledger, cfg.CleanupInterval, log).Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("inventory service listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down inventory service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(cfg *config.Config) (store.InventoryStore, error) {
	opts := []store.Option{
		store.WithReservationTTL(cfg.ReservationTTL),
		store.WithCASRetries(cfg.CASRetries),
	}

	switch cfg.Store {
	case config.StorePostgres:
		creds := &store.Credentials{
			Host:              cfg.Postgres.Host,
			Port:              cfg.Postgres.Port,
			User:              cfg.Postgres.User,
			Password:          cfg.Postgres.Password,
			DBName:            cfg.Postgres.DBName,
			MigrationsDirPath: cfg.MigrationsPath,
		}
		s, err := store.NewPostgresStore(creds, opts...)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := s.RunMigrations(creds); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.StoreSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := s.RunMigrations(cfg.MigrationsPath); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return store.NewMemoryStore(opts...), nil
	}
}

func seedCatalog(ctx context.Context, ledger store.InventoryStore, log *zap.Logger) error {
	_, total, err := ledger.ListProducts(ctx, 0, 1)
	if err != nil {
		return fmt.Errorf("inspect catalog: %w", err)
	}
	if total > 0 {
		return nil
	}
	for _, p := range initialCatalog {
		p.OwnerUsername = "catalog"
		if _, err := ledger.CreateProduct(ctx, &p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.Name, err)
		}
	}
	log.Info("seeded catalog", zap.Int("products", len(initialCatalog)))
	return nil
}
