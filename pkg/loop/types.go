package loop

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
)

// TransitionEntry is one immutable audit-trail row: a single executed state
// change. Once appended to a record's history it is never mutated or removed.
type TransitionEntry struct {
	FromState lifecycle.State `json:"from_state" bson:"from_state"`
	ToState   lifecycle.State `json:"to_state" bson:"to_state"`
	Trigger   string          `json:"trigger" bson:"trigger"`
	Timestamp time.Time       `json:"timestamp" bson:"timestamp"`
	Metadata  map[string]any  `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Record tracks a single work item through the closed-loop lifecycle.
// ID, Ref and Repo are immutable after creation. State is the single source
// of truth for where the item currently is; Transitions is the complete,
// append-only history proving how it got there.
type Record struct {
	ID        string `json:"record_id" bson:"_id"`
	Ref       string `json:"ref" bson:"ref"`
	RefNumber int    `json:"ref_number,omitempty" bson:"ref_number,omitempty"`
	Repo      string `json:"repo,omitempty" bson:"repo,omitempty"`

	PRURL    string `json:"pr_url,omitempty" bson:"pr_url,omitempty"`
	PRNumber int    `json:"pr_number,omitempty" bson:"pr_number,omitempty"`

	State     lifecycle.State   `json:"state" bson:"state"`
	AutoMerge bool              `json:"auto_merge" bson:"auto_merge"`
	CIStatus  map[string]string `json:"ci_status,omitempty" bson:"ci_status,omitempty"`
	Labels    map[string]string `json:"labels,omitempty" bson:"labels,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty" bson:"metadata,omitempty"`

	Transitions []TransitionEntry `json:"transitions" bson:"transitions"`

	// Version is the optimistic-concurrency token owned by repositories.
	// It is incremented on every successful Save; saving with a stale
	// version fails with ErrConflict.
	Version int64 `json:"version" bson:"version"`

	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// Clone returns a deep copy of the record. Repositories use it to keep
// stored state isolated from caller mutations; callers can use it to
// snapshot a record before attempting a transition.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r

	cp.CIStatus = cloneStringMap(r.CIStatus)
	cp.Labels = cloneStringMap(r.Labels)
	cp.Metadata = cloneAnyMap(r.Metadata)

	if r.Transitions != nil {
		cp.Transitions = make([]TransitionEntry, len(r.Transitions))
		for i, entry := range r.Transitions {
			cp.Transitions[i] = entry
			cp.Transitions[i].Metadata = cloneAnyMap(entry.Metadata)
		}
	}

	if r.ClosedAt != nil {
		closedAt := *r.ClosedAt
		cp.ClosedAt = &closedAt
	}

	return &cp
}

// Validate checks structural integrity of the record: required fields,
// known states, and history consistency. It does not replay the graph;
// use Replay for the full audit invariant.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: record_id is required", ErrInvalidRecord)
	}
	if r.Ref == "" {
		return fmt.Errorf("%w: ref is required", ErrInvalidRecord)
	}
	if !r.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidRecord, r.State)
	}
	if len(r.Transitions) == 0 {
		if r.State != lifecycle.Initial {
			return fmt.Errorf("%w: empty history but state is %q, expected %q",
				ErrInvalidRecord, r.State, lifecycle.Initial)
		}
		return nil
	}
	if first := r.Transitions[0].FromState; first != lifecycle.Initial {
		return fmt.Errorf("%w: history starts at %q, expected %q",
			ErrInvalidRecord, first, lifecycle.Initial)
	}
	if last := r.Transitions[len(r.Transitions)-1].ToState; last != r.State {
		return fmt.Errorf("%w: history ends at %q but state is %q",
			ErrInvalidRecord, last, r.State)
	}
	return nil
}

// Replay walks the transition history from the initial state and verifies
// that every step is a legal edge, consecutive entries chain (each entry's
// FromState equals the previous entry's ToState), and the final state
// matches the record's current state. This is the audit invariant the
// history exists to prove.
func (r *Record) Replay() error {
	current := lifecycle.Initial
	for i, entry := range r.Transitions {
		if entry.FromState != current {
			return fmt.Errorf("%w: entry %d starts at %q, expected %q",
				ErrHistoryCorrupt, i, entry.FromState, current)
		}
		if !lifecycle.IsAllowed(entry.FromState, entry.ToState) {
			return fmt.Errorf("%w: entry %d records illegal edge %s → %s",
				ErrHistoryCorrupt, i, entry.FromState, entry.ToState)
		}
		current = entry.ToState
	}
	if current != r.State {
		return fmt.Errorf("%w: replay ends at %q but state is %q",
			ErrHistoryCorrupt, current, r.State)
	}
	return nil
}

// TransitionResult reports the outcome of one transition attempt.
// On failure the stored record is guaranteed unchanged.
type TransitionResult struct {
	Success       bool
	Record        *Record
	PreviousState lifecycle.State
	NewState      lifecycle.State
	Err           error
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
