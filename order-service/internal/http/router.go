package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mikro-shop/fulfillment/order-service/internal/service"
	"github.com/mikro-shop/fulfillment/pkg/auth"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// NewRouter wires the order HTTP API
func NewRouter(orders service.OrderService, requestTimeout time.Duration, log *zap.Logger) http.Handler {
	h := NewOrdersHandler(orders, requestTimeout, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{order_id}", h.GetOrder)
	})

	return otelhttp.NewHandler(r, "order-service")
}
