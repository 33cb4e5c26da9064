package store

import (
	"context"
	"sync"
)

// Memory keeps entities in a mutex-guarded map. It is the reference
// implementation of the compare-and-increment semantics and backs the unit
// tests; the Mongo and Postgres stores must behave identically.
type Memory[T any, PT Ptr[T]] struct {
	mu      sync.Mutex
	entries map[string]T
}

func NewMemory[T any, PT Ptr[T]]() *Memory[T, PT] {
	return &Memory[T, PT]{entries: make(map[string]T)}
}

func (m *Memory[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return PT(&e), nil
}

func (m *Memory[T, PT]) Insert(ctx context.Context, e PT) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := e.meta().ID
	if _, ok := m.entries[id]; ok {
		return ErrAlreadyExists
	}
	e.meta().Version = 0
	m.entries[id] = *e
	return nil
}

func (m *Memory[T, PT]) UpdateIfCurrent(ctx context.Context, id string, expected int, mutate func(PT)) (PT, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	pt := PT(&cur)
	if pt.meta().Version != expected {
		return nil, ErrVersionConflict
	}
	mutate(pt)
	pt.meta().Version = expected + 1
	m.entries[id] = cur

	out := cur
	return PT(&out), nil
}

// List returns a snapshot of every stored entity. Memory-only; repositories
// use it for the scan queries their SQL counterparts express directly.
func (m *Memory[T, PT]) List(ctx context.Context) []PT {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PT, 0, len(m.entries))
	for _, e := range m.entries {
		e := e
		out = append(out, PT(&e))
	}
	return out
}
