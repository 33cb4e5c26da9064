package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/observability"
)

const exchange = "ticketing.events"

// Rabbit implements Publisher and Subscriber on a RabbitMQ connection.
// Publishes go through a confirm-mode channel so Publish does not return
// until the broker has durably accepted the message. Each listener gets its
// own channel and a durable queue named group.subject, bound to the topic
// exchange; the queue is the durable group, surviving reconnects and
// splitting deliveries across replicas.
type Rabbit struct {
	conn    *amqp.Connection
	pub     *amqp.Channel
	pubMu   sync.Mutex
	ackWait time.Duration
	logger  observability.Logger
}

func NewRabbit(conn *amqp.Connection, ackWait time.Duration, logger observability.Logger) (*Rabbit, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Mark(err, ErrTransportUnavailable)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, err
	}
	return &Rabbit{conn: conn, pub: ch, ackWait: ackWait, logger: logger}, nil
}

func (r *Rabbit) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	start := time.Now()
	r.pubMu.Lock()
	dc, err := r.pub.PublishWithDeferredConfirmWithContext(ctx, exchange, string(ev.Subject()), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now(),
		Body:         data,
	})
	r.pubMu.Unlock()
	if err != nil {
		return errors.Mark(err, ErrTransportUnavailable)
	}

	acked, err := dc.WaitContext(ctx)
	observability.PublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return errors.Mark(err, ErrTransportUnavailable)
	}
	if !acked {
		return errors.Mark(errors.New("broker rejected publish"), ErrTransportUnavailable)
	}
	observability.EventsPublished.WithLabelValues(string(ev.Subject())).Inc()
	return nil
}

// Subscribe declares the listener's durable queue, binds it, and consumes
// until ctx is cancelled. Handlers run under the ack-wait deadline; an
// expired or failed handler leaves the message unacknowledged and requeued.
func (r *Rabbit) Subscribe(ctx context.Context, l Listener) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return errors.Mark(err, ErrTransportUnavailable)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	queue := l.Group + "." + string(l.Subject)
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(queue, string(l.Subject), exchange, false, nil); err != nil {
		return err
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					r.logger.WithField("queue", queue).Error("delivery channel closed")
					return
				}
				r.dispatch(ctx, l, d)
			}
		}
	}()
	return nil
}

func (r *Rabbit) dispatch(ctx context.Context, l Listener, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(ctx, r.ackWait)
	err := l.Handler(hctx, d.Body)
	cancel()

	subject, group := string(l.Subject), l.Group
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			r.logger.WithError(err).Error("ack failed")
			return
		}
		observability.EventsConsumed.WithLabelValues(subject, group, "ack").Inc()
	case errors.Is(err, ErrMalformedPayload):
		// Redelivering a payload that cannot be decoded changes nothing.
		r.logger.WithError(err).WithField("subject", subject).Error("dropping malformed payload")
		d.Nack(false, false)
		observability.EventsConsumed.WithLabelValues(subject, group, "drop").Inc()
	default:
		r.logger.WithError(err).WithField("subject", subject).Warn("handler failed, requeueing")
		// Brief pause keeps a persistently failing message from spinning
		// through the queue at full speed.
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		d.Nack(false, true)
		observability.EventsConsumed.WithLabelValues(subject, group, "requeue").Inc()
	}
}
