package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/domain"
	"github.com/mikro-shop/fulfillment/inventory-service/internal/store"
	"github.com/mikro-shop/fulfillment/pkg/logger"
	"go.uber.org/zap"
)

type ReservationHandler struct {
	store   store.InventoryStore
	timeout time.Duration
	log     *zap.Logger
}

func NewReservationHandler(s store.InventoryStore, timeout time.Duration, log *zap.Logger) *ReservationHandler {
	return &ReservationHandler{store: s, timeout: timeout, log: log}
}

type ReserveRequestDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// POST /api/v1/reservations
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ReserveRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	details := map[string]string{}
	if req.ProductID < 1 {
		details["productId"] = "must be a positive integer"
	}
	if req.Quantity < 1 {
		details["quantity"] = "must be at least 1"
	}
	if len(details) > 0 {
		respondValidation(w, r, details)
		return
	}

	res, err := h.store.Reserve(ctx, req.ProductID, req.Quantity)
	if err != nil {
		h.handleError(w, r, req.ProductID, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// POST /api/v1/reservations/{id}/confirm
func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.store.Confirm)
}

// POST /api/v1/reservations/{id}/release
func (h *ReservationHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.store.Release)
}

func (h *ReservationHandler) settle(w http.ResponseWriter, r *http.Request,
	op func(context.Context, string) (*domain.Reservation, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := op(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, 0, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *ReservationHandler) handleError(w http.ResponseWriter, r *http.Request, productID int64, err error) {
	var stockErr *store.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		respondError(w, r, http.StatusBadRequest, "Insufficient Stock", stockErr.Error())
	case errors.Is(err, store.ErrProductNotFound):
		respondError(w, r, http.StatusNotFound, "Product Not Found", fmt.Sprintf("Product not found with id: %d", productID))
	case errors.Is(err, store.ErrReservationNotFound):
		respondError(w, r, http.StatusNotFound, "Reservation Not Found", err.Error())
	case errors.Is(err, store.ErrInvalidStatus):
		respondError(w, r, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, store.ErrReservationExpired):
		respondError(w, r, http.StatusGone, "Reservation Expired", err.Error())
	default:
		logger.WithContext(r.Context(), h.log).Error("reservation failure", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
	}
}
