// Package events is the wire contract shared by every service. Subjects are a
// closed set; each subject has exactly one payload shape. Adding a field to a
// payload is backward compatible (consumers ignore unknown fields), renaming or
// removing one is not.
package events

import "encoding/json"

type Subject string

const (
	TicketCreatedSubject      Subject = "ticket:created"
	TicketUpdatedSubject      Subject = "ticket:updated"
	OrderCreatedSubject       Subject = "order:created"
	OrderCancelledSubject     Subject = "order:cancelled"
	PaymentCreatedSubject     Subject = "payment:created"
	ExpirationCompleteSubject Subject = "expiration:complete"
)

// Subjects lists every routable subject. Consumers and the choreography table
// are validated against this set.
var Subjects = []Subject{
	TicketCreatedSubject,
	TicketUpdatedSubject,
	OrderCreatedSubject,
	OrderCancelledSubject,
	PaymentCreatedSubject,
	ExpirationCompleteSubject,
}

// Event is any payload that knows which subject it is published on.
type Event interface {
	Subject() Subject
}

// OrderStatus values travel on the wire; do not reorder or rename.
type OrderStatus string

const (
	OrderCreated         OrderStatus = "created"
	OrderAwaitingPayment OrderStatus = "awaiting:payment"
	OrderCancelled       OrderStatus = "cancelled"
	OrderComplete        OrderStatus = "complete"
)

// TicketSnapshot is the slice of ticket state embedded in order events. The
// price is frozen at order creation so payment validation does not depend on
// later ticket edits.
type TicketSnapshot struct {
	ID    string  `json:"id"`
	Price float64 `json:"price,omitempty"`
}

type TicketCreated struct {
	ID      string  `json:"id"`
	Version int     `json:"version"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	UserID  string  `json:"userId"`
}

func (TicketCreated) Subject() Subject { return TicketCreatedSubject }

type TicketUpdated struct {
	ID      string  `json:"id"`
	Version int     `json:"version"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	UserID  string  `json:"userId"`
	OrderID string  `json:"orderId,omitempty"`
}

func (TicketUpdated) Subject() Subject { return TicketUpdatedSubject }

type OrderCreatedEvent struct {
	ID      string      `json:"id"`
	Version int         `json:"version"`
	Status  OrderStatus `json:"status"`
	UserID  string      `json:"userId"`
	// ExpiresAt is serialized as an RFC3339 UTC string, never a timestamp, so
	// every consumer derives the same instant regardless of local timezone.
	ExpiresAt string         `json:"expiresAt"`
	Ticket    TicketSnapshot `json:"ticket"`
}

func (OrderCreatedEvent) Subject() Subject { return OrderCreatedSubject }

type OrderCancelledEvent struct {
	ID      string         `json:"id"`
	Version int            `json:"version"`
	Ticket  TicketSnapshot `json:"ticket"`
}

func (OrderCancelledEvent) Subject() Subject { return OrderCancelledSubject }

type PaymentCreated struct {
	ID       string `json:"id"`
	OrderID  string `json:"orderId"`
	ChargeID string `json:"chargeId"`
}

func (PaymentCreated) Subject() Subject { return PaymentCreatedSubject }

type ExpirationComplete struct {
	OrderID string `json:"orderId"`
}

func (ExpirationComplete) Subject() Subject { return ExpirationCompleteSubject }

// Envelope is the serialized form handed to the transport.
type Envelope struct {
	Subject Subject         `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

func Wrap(ev Event) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Subject: ev.Subject(), Data: data}, nil
}
