package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Mongo persists entities in a collection keyed by _id with a version field.
// The compare-and-increment is a ReplaceOne filtered on both _id and the
// expected version, so a lost race surfaces as MatchedCount 0 rather than a
// silent overwrite.
type Mongo[T any, PT Ptr[T]] struct {
	coll *mongo.Collection
}

func NewMongo[T any, PT Ptr[T]](coll *mongo.Collection) *Mongo[T, PT] {
	return &Mongo[T, PT]{coll: coll}
}

func (s *Mongo[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	var e T
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return PT(&e), nil
}

func (s *Mongo[T, PT]) Insert(ctx context.Context, e PT) error {
	e.meta().Version = 0
	_, err := s.coll.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *Mongo[T, PT]) UpdateIfCurrent(ctx context.Context, id string, expected int, mutate func(PT)) (PT, error) {
	var cur T
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&cur)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pt := PT(&cur)
	if pt.meta().Version != expected {
		return nil, ErrVersionConflict
	}

	mutate(pt)
	pt.meta().Version = expected + 1

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": id, "version": expected}, cur)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		// Another writer advanced the version between our read and write.
		return nil, ErrVersionConflict
	}
	return pt, nil
}
