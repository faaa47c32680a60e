package loop

import (
	"context"
	"sync"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
)

// MemoryRepository is the reference in-memory Repository implementation,
// intended for tests, prototyping and local development.
//
// All access happens inside a mutex-guarded critical section, so concurrent
// transitions against the same record serialize on the version check:
// exactly one racing writer wins, the rest get ErrConflict. Records are
// deep-copied on the way in and out to keep stored state isolated from
// caller mutations.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record

	// byState indexes record IDs for ListByState; insertion order within
	// a state bucket is preserved, which is all the ordering guarantee
	// this backend offers.
	byState map[lifecycle.State][]string
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*Record),
		byState: make(map[lifecycle.State][]string),
	}
}

// Save upserts a record by ID. The incoming Version must match the stored
// one (or be zero for a new record); on success the stored copy carries
// Version+1 and a copy of it is returned.
func (m *MemoryRepository) Save(ctx context.Context, record *Record) (*Record, error) {
	if record == nil {
		return nil, ErrInvalidRecord
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.records[record.ID]
	if exists {
		if stored.Version != record.Version {
			return nil, ErrConflict
		}
	} else if record.Version != 0 {
		return nil, ErrConflict
	}

	cp := record.Clone()
	cp.Version++

	if exists && stored.State != cp.State {
		m.removeFromIndex(stored.State, record.ID)
	}
	if !exists || stored.State != cp.State {
		m.byState[cp.State] = append(m.byState[cp.State], cp.ID)
	}
	m.records[cp.ID] = cp

	return cp.Clone(), nil
}

// Get retrieves a copy of the record, or ErrNotFound.
func (m *MemoryRepository) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Delete removes a record by ID, reporting whether it existed.
func (m *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return false, nil
	}
	m.removeFromIndex(record.State, id)
	delete(m.records, id)
	return true, nil
}

// ListByState returns up to limit records currently in the given state, in
// the order they entered it. A non-positive limit returns all matches.
func (m *MemoryRepository) ListByState(ctx context.Context, state lifecycle.State, limit int) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byState[state]
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		if record, ok := m.records[id]; ok && record.State == state {
			out = append(out, record.Clone())
		}
	}
	return out, nil
}

// Len reports the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// removeFromIndex must be called with the write lock held.
func (m *MemoryRepository) removeFromIndex(state lifecycle.State, id string) {
	ids := m.byState[state]
	for i, candidate := range ids {
		if candidate == id {
			m.byState[state] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}
