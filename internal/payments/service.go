package payments

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/observability"
	"github.com/robertarktes/ticketing-core/internal/store"
)

// Group is this service's durable consumer-group name on the bus.
const Group = "payments-service"

type Service struct {
	orders   store.Versioned[OrderReplica, *OrderReplica]
	payments store.Versioned[Payment, *Payment]
	bus      bus.Publisher
	logger   observability.Logger
}

func NewService(orders store.Versioned[OrderReplica, *OrderReplica], payments store.Versioned[Payment, *Payment], pub bus.Publisher, logger observability.Logger) *Service {
	return &Service{orders: orders, payments: payments, bus: pub, logger: logger}
}

// CreateCharge records a successful external charge for an order and
// announces it. The gateway call happens outside this core; chargeID is its
// result. Validation runs against the local replica: ownership, liveness,
// and the amount frozen in the order snapshot.
func (s *Service) CreateCharge(ctx context.Context, orderID, userID string, amount float64, chargeID string) (*Payment, error) {
	replica, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if replica.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	if replica.Status == events.OrderCancelled {
		return nil, ErrOrderCancelled
	}
	if amount != replica.Price {
		return nil, ErrAmountMismatch
	}

	p := &Payment{
		Meta:     store.Meta{ID: uuid.New().String()},
		OrderID:  orderID,
		ChargeID: chargeID,
	}
	if err := s.payments.Insert(ctx, p); err != nil {
		return nil, err
	}
	err = s.bus.Publish(ctx, events.PaymentCreated{
		ID:       p.ID,
		OrderID:  p.OrderID,
		ChargeID: p.ChargeID,
	})
	return p, err
}

func (s *Service) Listeners() []bus.Listener {
	return []bus.Listener{
		{Subject: events.OrderCreatedSubject, Group: Group, Handler: bus.Typed(s.handleOrderCreated)},
		{Subject: events.OrderCancelledSubject, Group: Group, Handler: bus.Typed(s.handleOrderCancelled)},
	}
}

func (s *Service) handleOrderCreated(ctx context.Context, ev events.OrderCreatedEvent) error {
	replica := &OrderReplica{
		Meta:   store.Meta{ID: ev.ID},
		UserID: ev.UserID,
		Price:  ev.Ticket.Price,
		Status: ev.Status,
	}
	err := s.orders.Insert(ctx, replica)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return err
}

// handleOrderCancelled applies the cancellation at the version the event
// carries. A replica already past that version has seen this cancellation;
// a replica that has never seen the order keeps the message unacknowledged
// until order:created arrives.
func (s *Service) handleOrderCancelled(ctx context.Context, ev events.OrderCancelledEvent) error {
	_, err := s.orders.UpdateIfCurrent(ctx, ev.ID, ev.Version-1, func(o *OrderReplica) {
		o.Status = events.OrderCancelled
	})
	if errors.Is(err, store.ErrVersionConflict) {
		observability.VersionConflictsSkipped.Inc()
		return nil
	}
	return err
}
