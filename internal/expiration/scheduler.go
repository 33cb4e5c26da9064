// Package expiration arms a delayed job for every created order and fires
// expiration:complete when the payment window closes. Jobs live in a Redis
// sorted set scored by fire time, so they survive process restarts; a member
// is removed only after its event is confirmed published, giving at-least-
// once firing.
package expiration

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/observability"
)

// Group is this service's durable consumer-group name on the bus.
const Group = "expiration-service"

const jobsKey = "expiration:jobs"

// Job is the delayed payload; the orders service re-reads the order when it
// fires, so the job carries nothing but the id.
type Job struct {
	OrderID string `json:"orderId"`
}

type Scheduler struct {
	client *redis.Client
	bus    bus.Publisher
	logger observability.Logger
	now    func() time.Time
}

func NewScheduler(client *redis.Client, pub bus.Publisher, logger observability.Logger) *Scheduler {
	return &Scheduler{client: client, bus: pub, logger: logger, now: time.Now}
}

func (s *Scheduler) Schedule(ctx context.Context, fireAt time.Time, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.client.ZAdd(ctx, jobsKey, redis.Z{
		Score:  float64(fireAt.UnixMilli()),
		Member: string(payload),
	}).Err()
}

// FireDue publishes expiration:complete for every job whose fire time has
// passed and returns how many fired. A failed publish leaves the job in
// place for the next poll; a job that fired but failed removal fires again,
// which the terminal-state guard downstream absorbs.
func (s *Scheduler) FireDue(ctx context.Context) (int, error) {
	max := strconv.FormatInt(s.now().UnixMilli(), 10)
	members, err := s.client.ZRangeByScore(ctx, jobsKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, m := range members {
		var job Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			// A job we can never parse would wedge the queue; drop it loudly.
			s.logger.WithError(err).Error("dropping unparseable expiration job")
			s.client.ZRem(ctx, jobsKey, m)
			continue
		}
		if err := s.bus.Publish(ctx, events.ExpirationComplete{OrderID: job.OrderID}); err != nil {
			return fired, err
		}
		if err := s.client.ZRem(ctx, jobsKey, m).Err(); err != nil {
			return fired, err
		}
		observability.ExpirationJobsFired.Inc()
		fired++
	}
	return fired, nil
}

// Run polls for due jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.FireDue(ctx); err != nil {
				s.logger.WithError(err).Error("failed to fire due expirations")
			}
		}
	}
}

func (s *Scheduler) Listeners() []bus.Listener {
	return []bus.Listener{
		{Subject: events.OrderCreatedSubject, Group: Group, Handler: bus.Typed(s.handleOrderCreated)},
	}
}

func (s *Scheduler) handleOrderCreated(ctx context.Context, ev events.OrderCreatedEvent) error {
	fireAt, err := time.Parse(time.RFC3339, ev.ExpiresAt)
	if err != nil {
		return errors.Mark(err, bus.ErrMalformedPayload)
	}
	return s.Schedule(ctx, fireAt, Job{OrderID: ev.ID})
}
