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

	"github.com/mikro-shop/fulfillment/payment-service/internal/config"
	"github.com/mikro-shop/fulfillment/payment-service/internal/gateway"
	"github.com/mikro-shop/fulfillment/pkg/events"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"github.com/mikro-shop/fulfillment/pkg/messaging"
	"github.com/mikro-shop/fulfillment/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("payment-service", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("payment service failed", zap.Error(err))
	}
	log.Info("payment service stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, "payment-service", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	gw := gateway.NewGateway(
		messaging.NewReader(events.TopicPaymentRequests, cfg.ConsumerGroup, cfg.KafkaBrokers...),
		messaging.NewWriter(events.TopicPaymentResults, cfg.KafkaBrokers...),
		gateway.RandomStatus{},
		log,
	)
	defer gw.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      gateway.NewOpsRouter(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("payment gateway consuming",
			zap.String("topic", events.TopicPaymentRequests),
			zap.Strings("brokers", cfg.KafkaBrokers))
		gw.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("payment service listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down payment service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
