// Package journal keeps an append-only record of every published event in
// Mongo. It is an audit trail, not the source of truth: the state of every
// service must be re-derivable from it, and a failed journal write never
// fails the publish.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/observability"
)

type Entry struct {
	ID          string    `bson:"_id"`
	Subject     string    `bson:"subject"`
	Payload     string    `bson:"payload"`
	PublishedAt time.Time `bson:"publishedAt"`
}

type Recorder struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewRecorder(db *mongo.Database, logger observability.Logger) *Recorder {
	return &Recorder{coll: db.Collection("event_journal"), logger: logger}
}

func (r *Recorder) Record(ctx context.Context, env events.Envelope) error {
	entry := Entry{
		ID:          uuid.New().String(),
		Subject:     string(env.Subject),
		Payload:     string(env.Data),
		PublishedAt: time.Now().UTC(),
	}
	_, err := r.coll.InsertOne(ctx, entry)
	return err
}

type journaled struct {
	next bus.Publisher
	rec  *Recorder
}

// WithJournal records each successfully published event. With a nil recorder
// it returns the publisher unchanged.
func WithJournal(next bus.Publisher, rec *Recorder) bus.Publisher {
	if rec == nil {
		return next
	}
	return &journaled{next: next, rec: rec}
}

func (j *journaled) Publish(ctx context.Context, ev events.Event) error {
	if err := j.next.Publish(ctx, ev); err != nil {
		return err
	}
	env, err := events.Wrap(ev)
	if err != nil {
		return nil
	}
	if err := j.rec.Record(ctx, env); err != nil {
		j.rec.logger.WithError(err).Warn("journal write failed")
	}
	return nil
}
