package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus represents the state of a stock reservation
type ReservationStatus string

const (
	StatusReserved  ReservationStatus = "reserved"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusReleased  ReservationStatus = "released"
	StatusExpired   ReservationStatus = "expired"
)

// Product is a catalog entry together with its stock counter.
// Stock never drops below zero and Reserved never exceeds Stock.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Stock         int             `json:"stock"`
	Reserved      int             `json:"reserved"`
	Price         decimal.Decimal `json:"price"`
	OwnerUsername string          `json:"ownerUsername"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Available returns the stock that can still be decremented or reserved
func (p Product) Available() int {
	return p.Stock - p.Reserved
}

// Reservation holds stock for a product until it is confirmed, released
// or expires.
type Reservation struct {
	ID        string            `json:"id"`
	ProductID int64             `json:"productId"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// IsExpiredAt checks if the reservation has expired at the given instant
func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
