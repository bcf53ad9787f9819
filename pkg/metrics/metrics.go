// Package metrics declares the Prometheus collectors shared by the services
// and the chi middleware that records per-route request latency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders persisted in CREATED state.",
	})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Order creations aborted before persistence, by reason.",
	}, []string{"reason"})

	DegradedLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_degraded_results_total",
		Help: "Fallback placeholders returned instead of ledger responses.",
	}, []string{"operation"})

	StockDecrements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_stock_decrements_total",
		Help: "Ledger decrement attempts by outcome.",
	}, []string{"outcome"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open).",
	}, []string{"dependency"})

	PaymentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Payment outcomes produced by the gateway.",
	}, []string{"status"})

	PaymentResultsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_results_applied_total",
		Help: "Payment results processed by the reconciler, by outcome.",
	}, []string{"outcome"})

	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_publish_failures_total",
		Help: "Messages that could not be written to the broker.",
	}, []string{"topic"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware observes request latency labelled with the matched chi route
// pattern so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
