// Package payments records charges against orders it learns about from the
// bus. It keeps its own order replica so a charge can be validated without a
// synchronous call to the orders service.
package payments

import (
	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/store"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotOrderOwner  = errors.New("order belongs to another user")
	ErrOrderCancelled = errors.New("order is cancelled")
	ErrAmountMismatch = errors.New("charge amount does not match order price")
)

// OrderReplica mirrors the slice of order state payment validation needs.
// The cancel transition is applied at the version carried by the event, so a
// redelivered or out-of-order cancellation cannot double-apply.
type OrderReplica struct {
	store.Meta `bson:",inline"`
	UserID     string             `bson:"userId" json:"userId"`
	Price      float64            `bson:"price" json:"price"`
	Status     events.OrderStatus `bson:"status" json:"status"`
}

// Payment is immutable once written.
type Payment struct {
	store.Meta `bson:",inline"`
	OrderID    string `bson:"orderId" json:"orderId"`
	ChargeID   string `bson:"chargeId" json:"chargeId"`
}
