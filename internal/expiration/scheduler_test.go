package expiration

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	redismock "github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/observability"
)

func TestScheduleAddsJobAtFireTime(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	sched := NewScheduler(client, bus.NewMemory(), observability.Nop())

	fireAt := time.UnixMilli(60_000)
	mock.ExpectZAdd(jobsKey, redis.Z{Score: 60_000, Member: `{"orderId":"o1"}`}).SetVal(1)

	if err := sched.Schedule(ctx, fireAt, Job{OrderID: "o1"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFireDuePublishesThenRemoves(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	m := bus.NewMemory()
	sched := NewScheduler(client, m, observability.Nop())
	sched.now = func() time.Time { return time.UnixMilli(120_000) }

	mock.ExpectZRangeByScore(jobsKey, &redis.ZRangeBy{Min: "-inf", Max: "120000"}).
		SetVal([]string{`{"orderId":"o1"}`})
	mock.ExpectZRem(jobsKey, `{"orderId":"o1"}`).SetVal(1)

	fired, err := sched.FireDue(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fired != 1 {
		t.Errorf("expected 1 fired job, got %d", fired)
	}
	if got := len(m.Published(events.ExpirationCompleteSubject)); got != 1 {
		t.Errorf("expected 1 expiration:complete publish, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFireDueKeepsJobWhenPublishFails(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	sched := NewScheduler(client, failingPublisher{}, observability.Nop())
	sched.now = func() time.Time { return time.UnixMilli(120_000) }

	// No ZRem expectation: the member must stay for the next poll.
	mock.ExpectZRangeByScore(jobsKey, &redis.ZRangeBy{Min: "-inf", Max: "120000"}).
		SetVal([]string{`{"orderId":"o1"}`})

	if _, err := sched.FireDue(ctx); err == nil {
		t.Error("expected publish failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestOrderCreatedArmsTimer(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	m := bus.NewMemory()
	sched := NewScheduler(client, m, observability.Nop())
	for _, l := range sched.Listeners() {
		if err := m.Subscribe(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	expiresAt := "2026-01-02T15:04:05Z"
	fireAt, _ := time.Parse(time.RFC3339, expiresAt)
	mock.ExpectZAdd(jobsKey, redis.Z{
		Score:  float64(fireAt.UnixMilli()),
		Member: `{"orderId":"o1"}`,
	}).SetVal(1)

	err := m.Publish(ctx, events.OrderCreatedEvent{
		ID:        "o1",
		Status:    events.OrderCreated,
		UserID:    "u1",
		ExpiresAt: expiresAt,
		Ticket:    events.TicketSnapshot{ID: "t1", Price: 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUnparseableExpiryIsMalformed(t *testing.T) {
	client, _ := redismock.NewClientMock()
	sched := NewScheduler(client, bus.NewMemory(), observability.Nop())

	err := sched.handleOrderCreated(context.Background(), events.OrderCreatedEvent{
		ID:        "o1",
		ExpiresAt: "not a timestamp",
	})
	if !errors.Is(err, bus.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}
