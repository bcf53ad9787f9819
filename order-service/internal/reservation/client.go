// Package reservation is the order service's client for the inventory
// ledger. Every call goes through the "inventory-service" circuit breaker;
// transport failures and open-breaker rejections degrade to placeholder
// snapshots while business rejections come back as *RemoteError.
package reservation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mikro-shop/fulfillment/pkg/auth"
	"github.com/mikro-shop/fulfillment/pkg/circuitbreaker"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Dependency is the breaker name shared by every ledger call.
const Dependency = "inventory-service"

const (
	UnavailableProductName   = "Product temporarily unavailable"
	DecrementFailedName      = "Stock reduction failed - service unavailable"
	insufficientStockTitle   = "Insufficient Stock"
	reservationNotFoundTitle = "Reservation Not Found"
	maxErrorBodyBytes        = 64 << 10
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrUnavailable is returned by reservation calls when the ledger cannot be
	// reached or the breaker is open; there is no placeholder for them.
	ErrUnavailable = errors.New("inventory service unavailable")
)

// RemoteError is a 4xx answer from the ledger.
type RemoteError struct {
	Status  int
	Title   string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("inventory-service returned %d %s", e.Status, e.Title)
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrProductNotFound:
		return e.Status == http.StatusNotFound && e.Title != reservationNotFoundTitle
	case ErrReservationNotFound:
		return e.Status == http.StatusNotFound && e.Title == reservationNotFoundTitle
	case ErrInsufficientStock:
		return e.Status == http.StatusBadRequest && e.Title == insufficientStockTitle
	}
	return false
}

// isHealthy tells the breaker that business rejections are not failures.
func isHealthy(err error) bool {
	if err == nil {
		return true
	}
	var re *RemoteError
	return errors.As(err, &re)
}

type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Stock int             `json:"stock"`
	Price decimal.Decimal `json:"price"`
}

// Snapshot is a product read or decrement result. Degraded marks a
// placeholder produced while the ledger was unreachable.
type Snapshot struct {
	Product  Product
	Degraded bool
}

type Reservation struct {
	ID        string    `json:"id"`
	ProductID int64     `json:"productId"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	reads      singleflight.Group
	log        *zap.Logger
}

// NewClient builds a ledger client. The breaker comes from registry so that
// every client in the process shares one breaker state per dependency.
func NewClient(baseURL string, registry *circuitbreaker.Registry, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(auth.ForwardingTransport{Base: http.DefaultTransport}),
		},
		breaker: registry.Get(Dependency, circuitbreaker.WithSuccessClassifier(isHealthy)),
		log:     log,
	}
}

// Snapshot reads the current state of a product. Concurrent reads for the
// same product on behalf of the same caller share one remote call, which
// keeps running when one of the callers gives up.
func (c *Client) Snapshot(ctx context.Context, productID int64) (Snapshot, error) {
	key := strconv.FormatInt(productID, 10) + "|" + auth.Principal(ctx) + "|" + auth.Credential(ctx)
	shared := context.WithoutCancel(ctx)
	ch := c.reads.DoChan(key, func() (any, error) {
		return circuitbreaker.Do(shared, c.breaker, func(ctx context.Context) (Product, error) {
			var p Product
			err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", productID), nil, &p)
			return p, err
		})
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.fallback(ctx, "snapshot", productID, UnavailableProductName, res.Err)
		}
		return Snapshot{Product: res.Val.(Product)}, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Decrement reduces stock by qty and returns the post-decrement product.
func (c *Client) Decrement(ctx context.Context, productID int64, qty int) (Snapshot, error) {
	p, err := circuitbreaker.Do(ctx, c.breaker, func(ctx context.Context) (Product, error) {
		var p Product
		err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/reduce-stock", productID),
			map[string]int{"quantity": qty}, &p)
		return p, err
	})
	if err != nil {
		return c.fallback(ctx, "decrement", productID, DecrementFailedName, err)
	}
	return Snapshot{Product: p}, nil
}

func (c *Client) Reserve(ctx context.Context, productID int64, qty int) (*Reservation, error) {
	return c.reservationCall(ctx, "reserve", "/api/v1/reservations",
		map[string]any{"productId": productID, "quantity": qty})
}

func (c *Client) Confirm(ctx context.Context, reservationID string) (*Reservation, error) {
	return c.reservationCall(ctx, "confirm", "/api/v1/reservations/"+reservationID+"/confirm", nil)
}

func (c *Client) Release(ctx context.Context, reservationID string) (*Reservation, error) {
	return c.reservationCall(ctx, "release", "/api/v1/reservations/"+reservationID+"/release", nil)
}

func (c *Client) reservationCall(ctx context.Context, op, path string, body any) (*Reservation, error) {
	res, err := circuitbreaker.Do(ctx, c.breaker, func(ctx context.Context) (*Reservation, error) {
		var r Reservation
		if err := c.do(ctx, http.MethodPost, path, body, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err == nil {
		return res, nil
	}
	var re *RemoteError
	if errors.As(err, &re) || ctx.Err() != nil {
		return nil, err
	}
	metrics.DegradedLookups.WithLabelValues(op).Inc()
	c.log.Warn("inventory reservation call failed", zap.String("operation", op), zap.Error(err))
	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// fallback turns infrastructure failures into a degraded placeholder. It
// passes business rejections through, as well as failures of a caller that
// has already gone away.
func (c *Client) fallback(ctx context.Context, op string, productID int64, name string, err error) (Snapshot, error) {
	var re *RemoteError
	if errors.As(err, &re) || ctx.Err() != nil {
		return Snapshot{}, err
	}
	metrics.DegradedLookups.WithLabelValues(op).Inc()
	c.log.Warn("inventory call degraded to fallback",
		zap.String("operation", op),
		zap.Int64("product_id", productID),
		zap.Bool("breaker_rejected", circuitbreaker.IsRejected(err)),
		zap.Error(err))
	return Snapshot{
		Product:  Product{ID: productID, Name: name, Price: decimal.Zero},
		Degraded: true,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusRequestTimeout &&
		resp.StatusCode != http.StatusTooManyRequests:
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBodyBytes)).Decode(&eb)
		return &RemoteError{Status: resp.StatusCode, Title: eb.Error, Message: eb.Message}
	default:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
}
