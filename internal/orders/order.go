// Package orders owns the order lifecycle: Created, then exactly one of
// Complete (payment arrived) or Cancelled (expiry or explicit cancellation).
// Both outcomes are terminal.
package orders

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/store"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrTicketReserved rejects an order for a ticket already attached to an
	// active order. This is a point-in-time check, not a lock; a concurrent
	// duplicate slips through and loses the version race on attach instead.
	ErrTicketReserved = errors.New("ticket is reserved")
	ErrOrderTerminal  = errors.New("order is in a terminal state")
)

type Order struct {
	store.Meta `bson:",inline"`
	Status     events.OrderStatus `bson:"status" json:"status"`
	UserID     string             `bson:"userId" json:"userId"`
	ExpiresAt  time.Time          `bson:"expiresAt" json:"expiresAt"`
	// Ticket is a snapshot taken at creation; later ticket edits do not
	// change what this order charges.
	Ticket events.TicketSnapshot `bson:"ticket" json:"ticket"`
}

// Terminal reports whether the order accepts no further transitions.
func (o *Order) Terminal() bool {
	return o.Status == events.OrderCancelled || o.Status == events.OrderComplete
}

// TicketReplica is this service's local cache of the tickets it can sell,
// maintained from ticket:created and ticket:updated.
type TicketReplica struct {
	store.Meta `bson:",inline"`
	Title      string  `bson:"title" json:"title"`
	Price      float64 `bson:"price" json:"price"`
}

// Repository is the order store plus the reservation query.
type Repository interface {
	store.Versioned[Order, *Order]
	// ActiveOrderForTicket returns any non-cancelled order referencing the
	// ticket, or store.ErrNotFound when the ticket is free.
	ActiveOrderForTicket(ctx context.Context, ticketID string) (*Order, error)
}
