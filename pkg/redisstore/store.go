package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
	"github.com/dmitrymomot/loopforge/pkg/loop"
)

// Store is the key-value loop.Repository backed by Redis. Each record is a
// JSON blob under <prefix>:record:<id>; a per-state sorted set scored by
// updated_at serves ListByState.
//
// Optimistic concurrency uses WATCH on the record key: the version check
// and the write happen inside one watched MULTI/EXEC, so a concurrent
// writer either aborts the transaction (retried as a version re-check) or
// is caught by the version comparison and reported as loop.ErrConflict.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore wraps an existing client. The prefix namespaces every key; an
// empty prefix falls back to "loopforge".
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "loopforge"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(id string) string {
	return fmt.Sprintf("%s:record:%s", s.prefix, id)
}

func (s *Store) stateKey(state lifecycle.State) string {
	return fmt.Sprintf("%s:state:%s", s.prefix, state)
}

// Save upserts the record, bumping its version. The stored version must
// match the one the caller read or Save fails with loop.ErrConflict.
func (s *Store) Save(ctx context.Context, record *loop.Record) (*loop.Record, error) {
	stored := record.Clone()
	stored.Version = record.Version + 1

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	key := s.recordKey(record.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var previousState lifecycle.State
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// New record; any caller version is accepted, matching the
			// upsert semantics of the other backends.
		case err != nil:
			return err
		default:
			var existing loop.Record
			if err := json.Unmarshal(current, &existing); err != nil {
				return fmt.Errorf("decode stored record: %w", err)
			}
			if existing.Version != record.Version {
				return loop.ErrConflict
			}
			previousState = existing.State
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if previousState != "" && previousState != stored.State {
				pipe.ZRem(ctx, s.stateKey(previousState), stored.ID)
			}
			pipe.ZAdd(ctx, s.stateKey(stored.State), redis.Z{
				Score:  float64(stored.UpdatedAt.UnixNano()),
				Member: stored.ID,
			})
			return nil
		})
		return err
	}, key)
	if err != nil {
		// An aborted EXEC means another writer touched the key between the
		// read and the write; the version the caller holds is stale.
		if errors.Is(err, redis.TxFailedErr) {
			return nil, loop.ErrConflict
		}
		return nil, err
	}

	return stored, nil
}

// Get retrieves a record by ID, or loop.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*loop.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, loop.ErrNotFound
		}
		return nil, err
	}

	var record loop.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if record.Transitions == nil {
		record.Transitions = []loop.TransitionEntry{}
	}
	return &record, nil
}

// Delete removes a record and its state-index entry, reporting whether the
// record existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, loop.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(id))
		pipe.ZRem(ctx, s.stateKey(record.State), id)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListByState returns up to limit records in the given state, most recently
// updated first. Index entries whose record has since moved on are skipped.
func (s *Store) ListByState(ctx context.Context, state lifecycle.State, limit int) ([]*loop.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	ids, err := s.client.ZRevRange(ctx, s.stateKey(state), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*loop.Record, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, loop.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if record.State == state {
			out = append(out, record)
		}
	}
	return out, nil
}
