package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrOrderNotFound        = errors.New("order not found")
	ErrProductNotFound      = errors.New("product_not_found")
	ErrStockReductionFailed = errors.New("stock_reduction_failed")
	ErrProductUnavailable   = errors.New("product_unavailable")
)

// ValidationError lists the offending request fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ItemError aborts an order because of one line item. Kind is one of
// ErrProductNotFound, ErrStockReductionFailed or ErrProductUnavailable.
type ItemError struct {
	Kind      error
	ProductID int64
	Message   string
}

func (e *ItemError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s for product %d: %s", e.Kind, e.ProductID, e.Message)
	}
	return fmt.Sprintf("%s for product %d", e.Kind, e.ProductID)
}

func (e *ItemError) Unwrap() error { return e.Kind }
