// Package choreography pins down who publishes and who consumes each
// subject. There is no orchestrator; this table is the one place the whole
// workflow is visible, and the tests hold the wiring to it.
package choreography

import (
	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/expiration"
	"github.com/robertarktes/ticketing-core/internal/orders"
	"github.com/robertarktes/ticketing-core/internal/payments"
	"github.com/robertarktes/ticketing-core/internal/tickets"
)

type Edge struct {
	Producers []string
	Consumers []string
}

// Graph is the fixed event flow between the four services.
var Graph = map[events.Subject]Edge{
	events.TicketCreatedSubject: {
		Producers: []string{tickets.Group},
		Consumers: []string{orders.Group},
	},
	events.TicketUpdatedSubject: {
		Producers: []string{tickets.Group},
		Consumers: []string{orders.Group},
	},
	events.OrderCreatedSubject: {
		Producers: []string{orders.Group},
		Consumers: []string{tickets.Group, payments.Group, expiration.Group},
	},
	events.OrderCancelledSubject: {
		Producers: []string{orders.Group},
		Consumers: []string{tickets.Group, payments.Group},
	},
	events.PaymentCreatedSubject: {
		Producers: []string{payments.Group},
		Consumers: []string{orders.Group},
	},
	events.ExpirationCompleteSubject: {
		Producers: []string{expiration.Group},
		Consumers: []string{orders.Group},
	},
}

// Validate checks the graph covers exactly the subject registry and that
// every consumed subject has a producer.
func Validate() error {
	if len(Graph) != len(events.Subjects) {
		return errors.Newf("graph covers %d subjects, registry has %d", len(Graph), len(events.Subjects))
	}
	for _, subject := range events.Subjects {
		edge, ok := Graph[subject]
		if !ok {
			return errors.Newf("subject %s missing from graph", subject)
		}
		if len(edge.Producers) == 0 {
			return errors.Newf("subject %s has no producer", subject)
		}
		if len(edge.Consumers) == 0 {
			return errors.Newf("subject %s has no consumer", subject)
		}
	}
	return nil
}
