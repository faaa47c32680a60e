package loop

import (
	"context"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
)

// Repository is the storage boundary the transition engine depends on but
// does not implement. Any backend (relational, document, key-value,
// in-memory) satisfies the engine by implementing these four operations.
//
// Save must be atomic with respect to a single record: no partial write may
// become visible. Implementations must enforce the optimistic-concurrency
// contract on Record.Version — saving a record whose Version no longer
// matches the stored one fails with ErrConflict, so two racing
// read-modify-write transitions cannot both win.
//
// Get returns ErrNotFound for an absent ID. ListByState ordering is
// backend-defined; callers must not rely on it beyond "all matching records
// eventually appear" when re-querying.
type Repository interface {
	Save(ctx context.Context, record *Record) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListByState(ctx context.Context, state lifecycle.State, limit int) ([]*Record, error)
}
