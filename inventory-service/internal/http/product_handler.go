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
	"github.com/mikro-shop/fulfillment/inventory-service/internal/domain"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/store"
	"github.com/mikro-shop/fulfillment/pkg/auth"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type ProductHandler struct {
	store   store.InventoryStore
	timeout time.Duration
	log     *zap.Logger
}

func NewProductHandler(s store.InventoryStore, timeout time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{store: s, timeout: timeout, log: log}
}

type ProductRequestDTO struct {
	Name  string           `json:"name"`
	Stock *int             `json:"stock"`
	Price *decimal.Decimal `json:"price"`
}

type StockReductionRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ProductPageDTO struct {
	Content       []domain.Product `json:"content"`
	Page          int              `json:"page"`
	Size          int              `json:"size"`
	TotalElements int              `json:"totalElements"`
	TotalPages    int              `json:"totalPages"`
}

func (req ProductRequestDTO) validate() map[string]string {
	details := map[string]string{}
	if req.Name == "" {
		details["name"] = "must not be blank"
	}
	if req.Stock == nil || *req.Stock < 0 {
		details["stock"] = "must be zero or greater"
	}
	if req.Price == nil || req.Price.IsNegative() {
		details["price"] = "must be zero or greater"
	}
	return details
}

// POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if details := req.validate(); len(details) > 0 {
		respondValidation(w, r, details)
		return
	}

	p, err := h.store.CreateProduct(ctx, &domain.Product{
		Name:          req.Name,
		Stock:         *req.Stock,
		Price:         *req.Price,
		OwnerUsername: auth.Principal(r.Context()),
	})
	if err != nil {
		h.handleStoreError(w, r, 0, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.store.GetProduct(ctx, id)
	if err != nil {
		h.handleStoreError(w, r, id, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// GET /api/v1/products?page=0&size=10
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	page, err := queryInt(r, "page", 0)
	if err != nil || page < 0 {
		respondValidation(w, r, map[string]string{"page": "must be zero or greater"})
		return
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		respondValidation(w, r, map[string]string{"size": fmt.Sprintf("must be between 1 and %d", maxPageSize)})
		return
	}

	products, total, err := h.store.ListProducts(ctx, page*size, size)
	if err != nil {
		h.handleStoreError(w, r, 0, err)
		return
	}
	respondJSON(w, http.StatusOK, ProductPageDTO{
		Content:       products,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    (total + size - 1) / size,
	})
}

// PUT /api/v1/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productID(w, r)
	if !ok {
		return
	}
	var req ProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if details := req.validate(); len(details) > 0 {
		respondValidation(w, r, details)
		return
	}

	existing, ok := h.ownedProduct(ctx, w, r, id)
	if !ok {
		return
	}
	existing.Name = req.Name
	existing.Stock = *req.Stock
	existing.Price = *req.Price

	p, err := h.store.UpdateProduct(ctx, existing)
	if err != nil {
		h.handleStoreError(w, r, id, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// DELETE /api/v1/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productID(w, r)
	if !ok {
		return
	}
	if _, ok := h.ownedProduct(ctx, w, r, id); !ok {
		return
	}
	if err := h.store.DeleteProduct(ctx, id); err != nil {
		h.handleStoreError(w, r, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/products/{id}/reduce-stock
func (h *ProductHandler) ReduceStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productID(w, r)
	if !ok {
		return
	}
	var req StockReductionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if req.Quantity < 1 {
		respondValidation(w, r, map[string]string{"quantity": "must be at least 1"})
		return
	}

	p, err := h.store.ReduceStock(ctx, id, req.Quantity)
	metrics.StockDecrements.WithLabelValues(decrementOutcome(err)).Inc()
	if err != nil {
		logger.WithContext(ctx, h.log).Info("stock reduction rejected",
			zap.Int64("product_id", id), zap.Int("quantity", req.Quantity), zap.Error(err))
		h.handleStoreError(w, r, id, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ownedProduct loads the product and writes 403 when the caller does not own it
func (h *ProductHandler) ownedProduct(ctx context.Context, w http.ResponseWriter, r *http.Request, id int64) (*domain.Product, bool) {
	p, err := h.store.GetProduct(ctx, id)
	if err != nil {
		h.handleStoreError(w, r, id, err)
		return nil, false
	}
	if p.OwnerUsername != auth.Principal(r.Context()) {
		respondError(w, r, http.StatusForbidden, "Access Denied",
			fmt.Sprintf("Product %d belongs to %s", id, p.OwnerUsername))
		return nil, false
	}
	return p, true
}

func (h *ProductHandler) handleStoreError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	var stockErr *store.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		respondError(w, r, http.StatusBadRequest, "Insufficient Stock", stockErr.Error())
	case errors.Is(err, store.ErrProductNotFound):
		respondError(w, r, http.StatusNotFound, "Product Not Found", fmt.Sprintf("Product not found with id: %d", id))
	case errors.Is(err, store.ErrStockBelowReserved):
		respondError(w, r, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "Timeout", "request timed out")
	default:
		logger.WithContext(r.Context(), h.log).Error("inventory store failure", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
	}
}

func decrementOutcome(err error) string {
	var stockErr *store.InsufficientStockError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &stockErr) && stockErr.Concurrent:
		return "concurrent"
	case errors.As(err, &stockErr):
		return "insufficient"
	case errors.Is(err, store.ErrProductNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondValidation(w, r, map[string]string{"id": "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
