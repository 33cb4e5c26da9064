package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticketing-core/internal/events"
)

// Memory is an in-process bus with the same contract as the broker-backed
// one: at-least-once, per-group delivery, no ack on handler error. Failed
// deliveries park in a redelivery queue that tests drain explicitly with
// Redeliver, which makes redelivery scenarios deterministic.
type Memory struct {
	mu      sync.Mutex
	subs    []Listener
	log     []events.Envelope
	pending []pendingDelivery
}

type pendingDelivery struct {
	listener Listener
	data     []byte
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Subscribe(_ context.Context, l Listener) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, l)
	return nil
}

func (m *Memory) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.log = append(m.log, events.Envelope{Subject: ev.Subject(), Data: data})
	targets := m.matching(ev.Subject())
	m.mu.Unlock()

	// Handlers run outside the lock: they may publish follow-up events on
	// this same bus.
	for _, l := range targets {
		m.deliver(ctx, l, data)
	}
	return nil
}

// Inject delivers a raw payload on a subject, bypassing marshalling. Tests
// use it for malformed payloads and duplicate redeliveries.
func (m *Memory) Inject(ctx context.Context, subject events.Subject, data []byte) {
	m.mu.Lock()
	targets := m.matching(subject)
	m.mu.Unlock()
	for _, l := range targets {
		m.deliver(ctx, l, data)
	}
}

func (m *Memory) matching(subject events.Subject) []Listener {
	var out []Listener
	for _, l := range m.subs {
		if l.Subject == subject {
			out = append(out, l)
		}
	}
	return out
}

func (m *Memory) deliver(ctx context.Context, l Listener, data []byte) {
	err := l.Handler(ctx, data)
	if err == nil || errors.Is(err, ErrMalformedPayload) {
		return
	}
	m.mu.Lock()
	m.pending = append(m.pending, pendingDelivery{listener: l, data: data})
	m.mu.Unlock()
}

// Redeliver replays every unacknowledged delivery once and reports how many
// remain unacknowledged afterwards.
func (m *Memory) Redeliver(ctx context.Context) int {
	m.mu.Lock()
	queued := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, p := range queued {
		m.deliver(ctx, p.listener, p.data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Published returns the payloads accepted on a subject, in publish order.
func (m *Memory) Published(subject events.Subject) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []json.RawMessage
	for _, env := range m.log {
		if env.Subject == subject {
			out = append(out, env.Data)
		}
	}
	return out
}
