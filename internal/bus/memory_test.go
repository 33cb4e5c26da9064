package bus_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/events"
)

func TestDeliverOncePerGroup(t *testing.T) {
	ctx := context.Background()
	m := bus.NewMemory()

	var a, b int
	m.Subscribe(ctx, bus.Listener{
		Subject: events.TicketCreatedSubject,
		Group:   "group-a",
		Handler: func(context.Context, []byte) error { a++; return nil },
	})
	m.Subscribe(ctx, bus.Listener{
		Subject: events.TicketCreatedSubject,
		Group:   "group-b",
		Handler: func(context.Context, []byte) error { b++; return nil },
	})

	if err := m.Publish(ctx, events.TicketCreated{ID: "t1", Title: "show", Price: 10, UserID: "u1"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a != 1 || b != 1 {
		t.Errorf("expected one delivery per group, got %d/%d", a, b)
	}
	if got := len(m.Published(events.TicketCreatedSubject)); got != 1 {
		t.Errorf("expected 1 recorded publish, got %d", got)
	}
}

func TestHandlerErrorLeavesMessageForRedelivery(t *testing.T) {
	ctx := context.Background()
	m := bus.NewMemory()

	calls := 0
	m.Subscribe(ctx, bus.Listener{
		Subject: events.PaymentCreatedSubject,
		Group:   "orders-service",
		Handler: func(context.Context, []byte) error {
			calls++
			if calls == 1 {
				return errors.New("order not found")
			}
			return nil
		},
	})

	m.Publish(ctx, events.PaymentCreated{ID: "p1", OrderID: "o1", ChargeID: "ch1"})
	if calls != 1 {
		t.Fatalf("expected 1 delivery, got %d", calls)
	}

	remaining := m.Redeliver(ctx)
	if calls != 2 {
		t.Errorf("expected redelivery, got %d calls", calls)
	}
	if remaining != 0 {
		t.Errorf("expected empty redelivery queue, got %d", remaining)
	}
}

func TestMalformedPayloadIsDroppedNotRetried(t *testing.T) {
	ctx := context.Background()
	m := bus.NewMemory()

	calls := 0
	m.Subscribe(ctx, bus.Listener{
		Subject: events.OrderCreatedSubject,
		Group:   "tickets-service",
		Handler: bus.Typed(func(context.Context, events.OrderCreatedEvent) error {
			calls++
			return nil
		}),
	})

	m.Inject(ctx, events.OrderCreatedSubject, []byte(`{not json`))

	if calls != 0 {
		t.Errorf("handler must not run on malformed payload, got %d calls", calls)
	}
	if remaining := m.Redeliver(ctx); remaining != 0 {
		t.Errorf("malformed payload must not be requeued, got %d pending", remaining)
	}
}

func TestTypedMarksDecodeFailure(t *testing.T) {
	h := bus.Typed(func(context.Context, events.TicketUpdated) error { return nil })
	err := h(context.Background(), []byte(`"not an object"`))
	if !errors.Is(err, bus.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}
