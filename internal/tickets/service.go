package tickets

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
const Group = "tickets-service"

type Service struct {
	store  Store
	bus    bus.Publisher
	logger observability.Logger
}

func NewService(st Store, pub bus.Publisher, logger observability.Logger) *Service {
	return &Service{store: st, bus: pub, logger: logger}
}

// Create stores a new ticket and announces it. The local write is never
// rolled back on publish failure; the returned error tells the caller the
// stream is behind and the publish should be retried.
func (s *Service) Create(ctx context.Context, title string, price float64, userID string) (*Ticket, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	t := &Ticket{
		Meta:   store.Meta{ID: uuid.New().String()},
		Title:  title,
		Price:  price,
		UserID: userID,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	err := s.bus.Publish(ctx, events.TicketCreated{
		ID:      t.ID,
		Version: t.Version,
		Title:   t.Title,
		Price:   t.Price,
		UserID:  t.UserID,
	})
	return t, err
}

// Update edits title and price. Edits are rejected while the ticket is
// reserved, so an in-flight order always completes against the price it was
// created with.
func (s *Service) Update(ctx context.Context, id, title string, price float64) (*Ticket, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Reserved() {
		return nil, ErrTicketReserved
	}
	updated, err := s.store.UpdateIfCurrent(ctx, id, t.Version, func(t *Ticket) {
		t.Title = title
		t.Price = price
	})
	if err != nil {
		return nil, err
	}
	return updated, s.publishUpdated(ctx, updated)
}

func (s *Service) Listeners() []bus.Listener {
	return []bus.Listener{
		{Subject: events.OrderCreatedSubject, Group: Group, Handler: bus.Typed(s.handleOrderCreated)},
		{Subject: events.OrderCancelledSubject, Group: Group, Handler: bus.Typed(s.handleOrderCancelled)},
	}
}

// handleOrderCreated attaches the order id, locking the reservation. The
// version check resolves the double-booking race: when two orders race for
// one ticket, exactly one attach lands and the loser's update is skipped.
func (s *Service) handleOrderCreated(ctx context.Context, ev events.OrderCreatedEvent) error {
	t, err := s.store.Get(ctx, ev.Ticket.ID)
	if err != nil {
		return err
	}
	if t.OrderID == ev.ID {
		// Redelivery of an attach we already applied.
		return nil
	}
	updated, err := s.store.UpdateIfCurrent(ctx, t.ID, t.Version, func(t *Ticket) {
		t.OrderID = ev.ID
	})
	if errors.Is(err, store.ErrVersionConflict) {
		observability.VersionConflictsSkipped.Inc()
		s.logger.WithField("ticketId", t.ID).Debug("stale attach skipped")
		return nil
	}
	if err != nil {
		return err
	}
	return s.publishUpdated(ctx, updated)
}

func (s *Service) handleOrderCancelled(ctx context.Context, ev events.OrderCancelledEvent) error {
	t, err := s.store.Get(ctx, ev.Ticket.ID)
	if err != nil {
		return err
	}
	if t.OrderID != ev.ID {
		// Already detached, or the ticket moved on to a newer order.
		return nil
	}
	updated, err := s.store.UpdateIfCurrent(ctx, t.ID, t.Version, func(t *Ticket) {
		t.OrderID = ""
	})
	if errors.Is(err, store.ErrVersionConflict) {
		observability.VersionConflictsSkipped.Inc()
		return nil
	}
	if err != nil {
		return err
	}
	return s.publishUpdated(ctx, updated)
}

// publishUpdated follows every ticket mutation, including listener-driven
// attach and detach, so downstream replicas track the current version.
func (s *Service) publishUpdated(ctx context.Context, t *Ticket) error {
	return s.bus.Publish(ctx, events.TicketUpdated{
		ID:      t.ID,
		Version: t.Version,
		Title:   t.Title,
		Price:   t.Price,
		UserID:  t.UserID,
		OrderID: t.OrderID,
	})
}
