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

	"github.com/mikro-shop/fulfillment/order-service/internal/config"
	"github.com/mikro-shop/fulfillment/order-service/internal/consumer"
	ordershttp "github.com/mikro-shop/fulfillment/order-service/internal/http"
	"github.com/mikro-shop/fulfillment/order-service/internal/publisher"
	"github.com/mikro-shop/fulfillment/order-service/internal/repository"
	"github.com/mikro-shop/fulfillment/order-service/internal/reservation"
	"github.com/mikro-shop/fulfillment/order-service/internal/service"
	"github.com/mikro-shop/fulfillment/pkg/circuitbreaker"
	"github.com/mikro-shop/fulfillment/pkg/events"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"github.com/mikro-shop/fulfillment/pkg/messaging"
	"github.com/mikro-shop/fulfillment/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("order-service", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("order service failed", zap.Error(err))
	}
	log.Info("order service stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sagaMode, err := service.ParseSagaMode(cfg.Order.SagaMode)
	if err != nil {
		return err
	}

	shutdownTracer, err := telemetry.SetupTracer(ctx, "order-service", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	payments := publisher.NewPaymentPublisher(
		messaging.NewWriter(events.TopicPaymentRequests, cfg.KafkaBrokers...), log)
	defer payments.Close()

	breakers := circuitbreaker.NewRegistry(cfg.Breaker, log)
	inventory := reservation.NewClient(cfg.InventoryURL, breakers, log)
	orders := service.NewOrderService(repo, inventory, payments, service.Options{
		Mode:            sagaMode,
		AbortOnDegraded: cfg.Order.AbortOnDegraded,
	}, log)

	var reconcilerOpts []consumer.Option
	if cfg.Reconciler.Strict {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Reconciler.RedisAddr})
		defer rdb.Close()
		reconcilerOpts = append(reconcilerOpts,
			consumer.WithStrict(consumer.NewRedisDeduplicator(rdb, cfg.Reconciler.DedupTTL)))
	}
	reconciler := consumer.NewReconciler(
		messaging.NewReader(events.TopicPaymentResults, cfg.ConsumerGroup, cfg.KafkaBrokers...),
		repo, log, reconcilerOpts...)
	defer reconciler.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      ordershttp.NewRouter(orders, cfg.RequestTimeout, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("order service configured",
		zap.String("saga_mode", string(sagaMode)),
		zap.Bool("abort_on_degraded", cfg.Order.AbortOnDegraded),
		zap.Bool("strict_reconciler", cfg.Reconciler.Strict),
		zap.String("inventory_url", cfg.InventoryURL))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reconciler.Run(gctx)
		return nil
	})
	if cfg.Publisher.SweepInterval > 0 {
		sweeper := publisher.NewSweeper(repo, payments, cfg.Publisher.SweepInterval, cfg.Publisher.StuckAfter, log)
		g.Go(func() error {
			sweeper.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info("order service listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down order service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openRepository(cfg *config.Config) (repository.OrderRepository, error) {
	if cfg.Repository == config.RepositoryMemory {
		return repository.NewMemoryRepository(), nil
	}

	creds := &repository.Credentials{
		Host:              cfg.Postgres.Host,
		Port:              cfg.Postgres.Port,
		User:              cfg.Postgres.User,
		Password:          cfg.Postgres.Password,
		DBName:            cfg.Postgres.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewPostgresRepository(creds)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := repo.RunMigrations(creds); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}
