package gateway

import (
	"math/rand"

	"github.com/mikro-shop/fulfillment/pkg/events"
)

// paidPercent is the share of payments the simulated processor accepts.
const paidPercent = 90

type StatusSource interface {
	Status() string
}

type RandomStatus struct{}

func (RandomStatus) Status() string {
	return calcStatus(rand.Intn(100))
}

// calcStatus maps n in [0, 100) to a settlement outcome.
func calcStatus(n int) string {
	if n < paidPercent {
		return events.PaymentStatusPaid
	}
	return events.PaymentStatusFailed
}
