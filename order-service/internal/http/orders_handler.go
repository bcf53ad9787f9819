package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mikro-shop/fulfillment/order-service/internal/domain"
	"github.com/mikro-shop/fulfillment/order-service/internal/service"
	"github.com/mikro-shop/fulfillment/pkg/auth"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	orders  service.OrderService
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(orders service.OrderService, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type CreateOrderRequestDTO struct {
	Items []service.ItemRequest `json:"items"`
}

type OrderItemDTO struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	TotalPrice  string `json:"totalPrice"`
}

type OrderResponseDTO struct {
	ID          int64          `json:"id"`
	CustomerID  string         `json:"customerId"`
	Items       []OrderItemDTO `json:"items"`
	TotalAmount string         `json:"totalAmount"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			TotalPrice:  it.TotalPrice.StringFixed(2),
		})
	}
	return OrderResponseDTO{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		Items:       items,
		TotalAmount: o.TotalAmount.StringFixed(2),
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.Create(ctx, auth.Principal(ctx), req.Items)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(order))
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListMine(ctx, auth.Principal(ctx))
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a positive integer")
		return
	}

	order, err := h.orders.Get(ctx, id, auth.Principal(ctx))
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "order_not_found", fmt.Sprintf("Order not found with id: %d", id))
			return
		}
		h.handleServiceError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(order))
}

func (h *OrdersHandler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation_failed",
			Message: "Input validation failed",
			Details: verr.Fields,
		})
		return
	}

	var itemErr *service.ItemError
	if errors.As(err, &itemErr) {
		switch {
		case errors.Is(itemErr.Kind, service.ErrProductNotFound):
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "product_not_found", ProductID: itemErr.ProductID})
		case errors.Is(itemErr.Kind, service.ErrStockReductionFailed):
			respondJSON(w, http.StatusBadRequest, errorResponse{
				Error:     "stock_reduction_failed",
				ProductID: itemErr.ProductID,
				Message:   itemErr.Message,
			})
		default:
			respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "product_unavailable", ProductID: itemErr.ProductID})
		}
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
		return
	}

	logger.WithContext(ctx, h.log).Error("order request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}
