// Package tickets owns the Ticket entity and its side of the order
// choreography: orders reserve a ticket by way of order:created and release
// it by way of order:cancelled.
package tickets

import (
	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticketing-core/internal/store"
)

var (
	ErrInvalidPrice = errors.New("ticket price must be positive")
	// ErrTicketReserved rejects edits while an active order holds the
	// ticket; the lock is released when the order is cancelled.
	ErrTicketReserved = errors.New("ticket is reserved")
)

type Ticket struct {
	store.Meta `bson:",inline"`
	Title      string  `bson:"title" json:"title"`
	Price      float64 `bson:"price" json:"price"`
	UserID     string  `bson:"userId" json:"userId"`
	// OrderID is the reservation lock: set while exactly one active order
	// references this ticket, empty otherwise.
	OrderID string `bson:"orderId,omitempty" json:"orderId,omitempty"`
}

func (t *Ticket) Reserved() bool { return t.OrderID != "" }

// Store is the ticket service's versioned persistence.
type Store = store.Versioned[Ticket, *Ticket]
