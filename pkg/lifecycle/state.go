package lifecycle

import "fmt"

// State is one stage of the closed-loop development lifecycle.
type State string

const (
	StateIssueCreated   State = "issue_created"
	StateTaskQueued     State = "task_queued"
	StatePRCreated      State = "pr_created"
	StateCIPending      State = "ci_pending"
	StateCIPassed       State = "ci_passed"
	StateCIFailed       State = "ci_failed"
	StateAwaitingReview State = "awaiting_review"
	StateApproved       State = "approved"
	StateMerged         State = "merged"
	StateClosed         State = "closed"
)

// Initial is the only state a record can be created in.
const Initial = StateIssueCreated

// allStates is used for validation and enumeration; order follows the
// happy path through the lifecycle.
var allStates = []State{
	StateIssueCreated,
	StateTaskQueued,
	StatePRCreated,
	StateCIPending,
	StateCIPassed,
	StateCIFailed,
	StateAwaitingReview,
	StateApproved,
	StateMerged,
	StateClosed,
}

// States returns every lifecycle state in happy-path order.
// The returned slice is a copy and may be modified freely.
func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the defined lifecycle states.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Parse converts a raw string into a State, rejecting unknown values.
func Parse(raw string) (State, error) {
	s := State(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown lifecycle state %q", raw)
	}
	return s, nil
}
