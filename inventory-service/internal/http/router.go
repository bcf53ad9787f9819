package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/store"
	"github.com/mikro-shop/fulfillment/pkg/auth"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// NewRouter wires the inventory HTTP API
func NewRouter(s store.InventoryStore, requestTimeout time.Duration, log *zap.Logger) http.Handler {
	products := NewProductHandler(s, requestTimeout, log)
	reservations := NewReservationHandler(s, requestTimeout, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", products.Create)
			r.Get("/", products.List)
			r.Get("/{id}", products.Get)
			r.Put("/{id}", products.Update)
			r.Delete("/{id}", products.Delete)
			r.Post("/{id}/reduce-stock", products.ReduceStock)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", reservations.Reserve)
			r.Post("/{id}/confirm", reservations.Confirm)
			r.Post("/{id}/release", reservations.Release)
		})
	})

	return otelhttp.NewHandler(r, "inventory-service")
}
