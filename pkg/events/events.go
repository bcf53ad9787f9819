// Package events defines the messages exchanged between the order service and
// the payment gateway. Payloads are bare JSON objects without an envelope.
package events

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	TopicPaymentRequests = "payment-requests"
	TopicPaymentResults  = "payment-results"
)

const (
	PaymentStatusPaid   = "PAID"
	PaymentStatusFailed = "FAILED"
)

type PaymentRequest struct {
	OrderID int64           `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

// MarshalJSON writes the amount as a JSON number with two decimals, e.g.
// 100.00.
func (r PaymentRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OrderID int64           `json:"orderId"`
		Amount  json.RawMessage `json:"amount"`
	}{r.OrderID, json.RawMessage(r.Amount.StringFixed(2))})
}

type PaymentResult struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}
