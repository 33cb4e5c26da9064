package payments_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/observability"
	"github.com/robertarktes/ticketing-core/internal/payments"
	"github.com/robertarktes/ticketing-core/internal/store"
)

func setup(t *testing.T) (*payments.Service, *bus.Memory, *store.Memory[payments.OrderReplica, *payments.OrderReplica]) {
	t.Helper()
	replicas := store.NewMemory[payments.OrderReplica, *payments.OrderReplica]()
	pays := store.NewMemory[payments.Payment, *payments.Payment]()
	m := bus.NewMemory()
	svc := payments.NewService(replicas, pays, m, observability.Nop())
	for _, l := range svc.Listeners() {
		if err := m.Subscribe(context.Background(), l); err != nil {
			t.Fatal(err)
		}
	}
	return svc, m, replicas
}

func seedOrder(t *testing.T, m *bus.Memory, id, userID string, price float64) {
	t.Helper()
	if err := m.Publish(context.Background(), events.OrderCreatedEvent{
		ID:        id,
		Status:    events.OrderCreated,
		UserID:    userID,
		ExpiresAt: "2026-01-02T15:04:05Z",
		Ticket:    events.TicketSnapshot{ID: "t1", Price: price},
	}); err != nil {
		t.Fatal(err)
	}
}

func TestOrderCreatedBuildsReplica(t *testing.T) {
	ctx := context.Background()
	_, m, replicas := setup(t)
	seedOrder(t, m, "o1", "u1", 20)

	got, err := replicas.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("expected replica, got %v", err)
	}
	if got.UserID != "u1" || got.Price != 20 || got.Status != events.OrderCreated {
		t.Errorf("unexpected replica: %+v", got)
	}
}

func TestOrderCancelledAppliesAtEventVersion(t *testing.T) {
	ctx := context.Background()
	_, m, replicas := setup(t)
	seedOrder(t, m, "o1", "u1", 20)

	ev := events.OrderCancelledEvent{ID: "o1", Version: 1, Ticket: events.TicketSnapshot{ID: "t1"}}
	if err := m.Publish(ctx, ev); err != nil {
		t.Fatal(err)
	}

	got, _ := replicas.Get(ctx, "o1")
	if got.Status != events.OrderCancelled || got.Version != 1 {
		t.Errorf("unexpected replica: %+v", got)
	}

	// Redelivery of the same cancellation is stale and must be acked.
	data, _ := json.Marshal(ev)
	m.Inject(ctx, events.OrderCancelledSubject, data)
	if remaining := m.Redeliver(ctx); remaining != 0 {
		t.Errorf("duplicate cancellation must be acked, got %d pending", remaining)
	}
	got, _ = replicas.Get(ctx, "o1")
	if got.Version != 1 {
		t.Errorf("redelivery must not bump the version, got %d", got.Version)
	}
}

func TestOrderCancelledBeforeCreatedStaysUnacked(t *testing.T) {
	ctx := context.Background()
	_, m, _ := setup(t)

	m.Publish(ctx, events.OrderCancelledEvent{ID: "o1", Version: 1})
	if remaining := m.Redeliver(ctx); remaining != 1 {
		t.Errorf("expected message still pending, got %d", remaining)
	}
}

func TestCreateChargeValidatesReplica(t *testing.T) {
	ctx := context.Background()
	svc, m, _ := setup(t)
	seedOrder(t, m, "o1", "u1", 20)

	if _, err := svc.CreateCharge(ctx, "missing", "u1", 20, "ch1"); !errors.Is(err, payments.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.CreateCharge(ctx, "o1", "intruder", 20, "ch1"); !errors.Is(err, payments.ErrNotOrderOwner) {
		t.Errorf("expected ErrNotOrderOwner, got %v", err)
	}
	if _, err := svc.CreateCharge(ctx, "o1", "u1", 15, "ch1"); !errors.Is(err, payments.ErrAmountMismatch) {
		t.Errorf("expected ErrAmountMismatch, got %v", err)
	}
}

func TestCreateChargeRejectsCancelledOrder(t *testing.T) {
	ctx := context.Background()
	svc, m, _ := setup(t)
	seedOrder(t, m, "o1", "u1", 20)
	m.Publish(ctx, events.OrderCancelledEvent{ID: "o1", Version: 1})

	if _, err := svc.CreateCharge(ctx, "o1", "u1", 20, "ch1"); !errors.Is(err, payments.ErrOrderCancelled) {
		t.Errorf("expected ErrOrderCancelled, got %v", err)
	}
}

func TestCreateChargePublishesPaymentCreated(t *testing.T) {
	ctx := context.Background()
	svc, m, _ := setup(t)
	seedOrder(t, m, "o1", "u1", 20)

	p, err := svc.CreateCharge(ctx, "o1", "u1", 20, "ch1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	published := m.Published(events.PaymentCreatedSubject)
	if len(published) != 1 {
		t.Fatalf("expected 1 payment:created publish, got %d", len(published))
	}
	var ev events.PaymentCreated
	json.Unmarshal(published[0], &ev)
	if ev.ID != p.ID || ev.OrderID != "o1" || ev.ChargeID != "ch1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}
