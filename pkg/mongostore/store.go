package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
	"github.com/dmitrymomot/loopforge/pkg/loop"
)

// Store is the document loop.Repository backed by MongoDB. Records are
// stored as single documents keyed by record ID, so every write of one
// record is atomic.
//
// Optimistic concurrency: a replace is filtered on both _id and the version
// the caller read. A matched count of zero on an existing document means
// another writer advanced the record first, which surfaces as
// loop.ErrConflict.
type Store struct {
	coll *mongo.Collection
}

// NewStore wraps a collection. Use CollectionFor to derive one from a
// connected client and Config.
func NewStore(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// CollectionFor resolves the records collection from the configured
// database and collection names.
func CollectionFor(client *mongo.Client, cfg Config) *mongo.Collection {
	return client.Database(cfg.Database).Collection(cfg.Collection)
}

// EnsureIndexes creates the state index serving ListByState. Safe to call
// repeatedly; index creation is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "state", Value: 1}, {Key: "updated_at", Value: -1}},
	})
	return err
}

// Save upserts the record, bumping its version. Replacing an existing
// document requires the stored version to match the one the caller read.
func (s *Store) Save(ctx context.Context, record *loop.Record) (*loop.Record, error) {
	stored := record.Clone()
	stored.Version = record.Version + 1

	res, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: record.ID}, {Key: "version", Value: record.Version}},
		stored,
	)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount > 0 {
		return stored, nil
	}

	// No document matched: either the record is new or the caller lost a
	// race. Insert distinguishes the two via the duplicate-key error.
	if _, err := s.coll.InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, loop.ErrConflict
		}
		return nil, err
	}
	return stored, nil
}

// Get retrieves a record by ID, or loop.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*loop.Record, error) {
	var record loop.Record
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, loop.ErrNotFound
		}
		return nil, err
	}
	if record.Transitions == nil {
		record.Transitions = []loop.TransitionEntry{}
	}
	return &record, nil
}

// Delete removes a record by ID, reporting whether a document existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// ListByState returns up to limit records in the given state, most recently
// updated first.
func (s *Store) ListByState(ctx context.Context, state lifecycle.State, limit int) ([]*loop.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	cursor, err := s.coll.Find(ctx,
		bson.D{{Key: "state", Value: string(state)}},
		options.Find().
			SetSort(bson.D{{Key: "updated_at", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*loop.Record
	for cursor.Next(ctx) {
		var record loop.Record
		if err := cursor.Decode(&record); err != nil {
			return nil, err
		}
		if record.Transitions == nil {
			record.Transitions = []loop.TransitionEntry{}
		}
		out = append(out, &record)
	}
	return out, cursor.Err()
}
