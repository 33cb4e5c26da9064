package orders

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/observability"
	"github.com/robertarktes/ticketing-core/internal/store"
)

// Group is this service's durable consumer-group name on the bus.
const Group = "orders-service"

type Service struct {
	orders  Repository
	tickets store.Versioned[TicketReplica, *TicketReplica]
	bus     bus.Publisher
	logger  observability.Logger
	window  time.Duration
	now     func() time.Time
}

func NewService(orders Repository, tickets store.Versioned[TicketReplica, *TicketReplica], pub bus.Publisher, logger observability.Logger, window time.Duration) *Service {
	return &Service{
		orders:  orders,
		tickets: tickets,
		bus:     pub,
		logger:  logger,
		window:  window,
		now:     time.Now,
	}
}

// CreateOrder reserves a ticket for the payment window. The reservation
// check queries for any active order on the ticket; it does not lock, so two
// concurrent creations can both pass here and get sorted out by the ticket
// service's version check on attach.
func (s *Service) CreateOrder(ctx context.Context, userID, ticketID string) (*Order, error) {
	replica, err := s.tickets.Get(ctx, ticketID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.orders.ActiveOrderForTicket(ctx, ticketID); err == nil {
		return nil, ErrTicketReserved
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	expiresAt := s.now().UTC().Add(s.window)
	o := &Order{
		Meta:      store.Meta{ID: uuid.New().String()},
		Status:    events.OrderCreated,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Ticket:    events.TicketSnapshot{ID: ticketID, Price: replica.Price},
	}
	if err := s.orders.Insert(ctx, o); err != nil {
		return nil, err
	}
	err = s.bus.Publish(ctx, events.OrderCreatedEvent{
		ID:        o.ID,
		Version:   o.Version,
		Status:    o.Status,
		UserID:    o.UserID,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Ticket:    o.Ticket,
	})
	return o, err
}

// CancelOrder transitions an order to Cancelled and releases the ticket via
// the order:cancelled event.
func (s *Service) CancelOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Terminal() {
		return nil, ErrOrderTerminal
	}
	updated, err := s.orders.UpdateIfCurrent(ctx, id, o.Version, func(o *Order) {
		o.Status = events.OrderCancelled
	})
	if err != nil {
		return nil, err
	}
	return updated, s.publishCancelled(ctx, updated)
}

func (s *Service) Listeners() []bus.Listener {
	return []bus.Listener{
		{Subject: events.TicketCreatedSubject, Group: Group, Handler: bus.Typed(s.handleTicketCreated)},
		{Subject: events.TicketUpdatedSubject, Group: Group, Handler: bus.Typed(s.handleTicketUpdated)},
		{Subject: events.ExpirationCompleteSubject, Group: Group, Handler: bus.Typed(s.handleExpirationComplete)},
		{Subject: events.PaymentCreatedSubject, Group: Group, Handler: bus.Typed(s.handlePaymentCreated)},
	}
}

func (s *Service) handleTicketCreated(ctx context.Context, ev events.TicketCreated) error {
	replica := &TicketReplica{
		Meta:  store.Meta{ID: ev.ID},
		Title: ev.Title,
		Price: ev.Price,
	}
	err := s.tickets.Insert(ctx, replica)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return err
}

// handleTicketUpdated applies an update only when the event version is the
// immediate successor of the replica's. An older or duplicate event is
// skipped; a gap means a prerequisite update has not arrived yet, so the
// message stays unacknowledged until it has.
func (s *Service) handleTicketUpdated(ctx context.Context, ev events.TicketUpdated) error {
	_, err := s.tickets.UpdateIfCurrent(ctx, ev.ID, ev.Version-1, func(t *TicketReplica) {
		t.Title = ev.Title
		t.Price = ev.Price
	})
	if errors.Is(err, store.ErrVersionConflict) {
		cur, getErr := s.tickets.Get(ctx, ev.ID)
		if getErr != nil {
			return getErr
		}
		if cur.Version >= ev.Version {
			observability.VersionConflictsSkipped.Inc()
			return nil
		}
		return errors.Wrapf(err, "ticket %s at version %d, event version %d", ev.ID, cur.Version, ev.Version)
	}
	return err
}

// handleExpirationComplete cancels the order if payment never arrived. A
// terminal order makes this a no-op, which is what keeps a late-firing timer
// from clawing back a completed payment.
func (s *Service) handleExpirationComplete(ctx context.Context, ev events.ExpirationComplete) error {
	o, err := s.orders.Get(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if o.Terminal() {
		return nil
	}
	updated, err := s.orders.UpdateIfCurrent(ctx, o.ID, o.Version, func(o *Order) {
		o.Status = events.OrderCancelled
	})
	if errors.Is(err, store.ErrVersionConflict) {
		observability.VersionConflictsSkipped.Inc()
		return nil
	}
	if err != nil {
		return err
	}
	return s.publishCancelled(ctx, updated)
}

func (s *Service) handlePaymentCreated(ctx context.Context, ev events.PaymentCreated) error {
	o, err := s.orders.Get(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if o.Status == events.OrderComplete {
		return nil
	}
	if o.Status == events.OrderCancelled {
		// Payment raced a cancellation and lost; the refund path is manual.
		s.logger.WithField("orderId", o.ID).Warn("payment arrived for cancelled order")
		return nil
	}
	_, err = s.orders.UpdateIfCurrent(ctx, o.ID, o.Version, func(o *Order) {
		o.Status = events.OrderComplete
	})
	if errors.Is(err, store.ErrVersionConflict) {
		observability.VersionConflictsSkipped.Inc()
		return nil
	}
	return err
}

func (s *Service) publishCancelled(ctx context.Context, o *Order) error {
	return s.bus.Publish(ctx, events.OrderCancelledEvent{
		ID:      o.ID,
		Version: o.Version,
		Ticket:  events.TicketSnapshot{ID: o.Ticket.ID},
	})
}
