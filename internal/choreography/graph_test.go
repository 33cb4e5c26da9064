package choreography_test

import (
	"testing"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/choreography"
	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/expiration"
	"github.com/robertarktes/ticketing-core/internal/observability"
	"github.com/robertarktes/ticketing-core/internal/orders"
	"github.com/robertarktes/ticketing-core/internal/payments"
	"github.com/robertarktes/ticketing-core/internal/store"
	"github.com/robertarktes/ticketing-core/internal/tickets"
)

func TestGraphIsValid(t *testing.T) {
	if err := choreography.Validate(); err != nil {
		t.Fatal(err)
	}
}

// TestServicesListenExactlyPerGraph pins each service's actual subscriptions
// to the declared choreography, so the wiring cannot drift silently.
func TestServicesListenExactlyPerGraph(t *testing.T) {
	ticketSvc := tickets.NewService(store.NewMemory[tickets.Ticket, *tickets.Ticket](), bus.NewMemory(), observability.Nop())
	orderSvc := orders.NewService(orders.NewMemoryRepository(), store.NewMemory[orders.TicketReplica, *orders.TicketReplica](), bus.NewMemory(), observability.Nop(), 0)
	paymentSvc := payments.NewService(store.NewMemory[payments.OrderReplica, *payments.OrderReplica](), store.NewMemory[payments.Payment, *payments.Payment](), bus.NewMemory(), observability.Nop())
	sched := expiration.NewScheduler(nil, bus.NewMemory(), observability.Nop())

	declared := make(map[events.Subject]map[string]bool)
	for subject, edge := range choreography.Graph {
		declared[subject] = make(map[string]bool)
		for _, c := range edge.Consumers {
			declared[subject][c] = true
		}
	}

	var all []bus.Listener
	all = append(all, ticketSvc.Listeners()...)
	all = append(all, orderSvc.Listeners()...)
	all = append(all, paymentSvc.Listeners()...)
	all = append(all, sched.Listeners()...)

	total := 0
	for _, l := range all {
		if !declared[l.Subject][l.Group] {
			t.Errorf("undeclared subscription: %s by %s", l.Subject, l.Group)
		}
		total++
	}

	want := 0
	for _, edge := range choreography.Graph {
		want += len(edge.Consumers)
	}
	if total != want {
		t.Errorf("graph declares %d subscriptions, services register %d", want, total)
	}
}
