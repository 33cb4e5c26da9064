// Package store implements optimistic-concurrency persistence for the
// versioned entities every service owns. A write must carry the version it
// read; the store compares and increments atomically, so concurrent writers
// serialize without locks and redelivered events become detectable no-ops.
package store

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound means the entity id has never been inserted.
	ErrNotFound = errors.New("entity not found")
	// ErrVersionConflict means the persisted version advanced past the
	// expected one. Handlers treat this as "already applied" and skip.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists means an insert hit an existing id, which is the
	// insert-side shape of a redelivered event.
	ErrAlreadyExists = errors.New("entity already exists")
)

// Meta carries identity and the concurrency version. Entities embed it:
//
//	type Ticket struct {
//		store.Meta `bson:",inline"`
//		...
//	}
//
// Version starts at 0 on insert and increments by exactly one per successful
// update. Events published about the entity carry the post-write version.
type Meta struct {
	ID      string `bson:"_id" json:"id"`
	Version int    `bson:"version" json:"version"`
}

func (m *Meta) meta() *Meta { return m }

// Entity is satisfied by embedding Meta.
type Entity interface {
	meta() *Meta
}

// Ptr constrains a pointer-to-struct that embeds Meta.
type Ptr[T any] interface {
	*T
	Entity
}

// Versioned is the compare-and-increment store contract. UpdateIfCurrent
// loads the entity, verifies the persisted version equals expected, applies
// mutate, and writes version expected+1 in the same conditional write. The
// mutation never runs against a stale snapshot.
type Versioned[T any, PT Ptr[T]] interface {
	Get(ctx context.Context, id string) (PT, error)
	Insert(ctx context.Context, e PT) error
	UpdateIfCurrent(ctx context.Context, id string, expected int, mutate func(PT)) (PT, error)
}
