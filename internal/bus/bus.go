// Package bus carries events between services with at-least-once semantics.
// A Listener names a subject and a durable group; the transport hands each
// message to exactly one member of the group and redelivers it until the
// handler returns nil and the delivery is acknowledged. Redelivery is the
// only retry mechanism, so handlers must be idempotent.
package bus

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticketing-core/internal/events"
)

var (
	// ErrMalformedPayload marks a decode failure. Retrying cannot help, so
	// the harness drops the message instead of requeueing and escalates in
	// the log for manual intervention.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrTransportUnavailable means the broker connection is gone. There is
	// no in-process buffering; the process restarts and reconnects.
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// Publisher hands a typed event to the transport. The call returns only after
// the transport has durably accepted the message for every durable group
// bound to its subject.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Handler processes one raw delivery. A nil return acknowledges the message;
// any error leaves it unacknowledged for redelivery, except errors marked
// ErrMalformedPayload.
type Handler func(ctx context.Context, data []byte) error

// Listener binds a handler to a subject under a durable group name.
type Listener struct {
	Subject events.Subject
	Group   string
	Handler Handler
}

// Subscriber registers listeners with a transport.
type Subscriber interface {
	Subscribe(ctx context.Context, l Listener) error
}

// Typed decodes the delivery into T before invoking the handler. Unknown
// fields in the payload are ignored, which is what keeps added event fields
// backward compatible.
func Typed[T events.Event](h func(ctx context.Context, ev T) error) Handler {
	return func(ctx context.Context, data []byte) error {
		var ev T
		if err := json.Unmarshal(data, &ev); err != nil {
			return errors.Mark(err, ErrMalformedPayload)
		}
		return h(ctx, ev)
	}
}
