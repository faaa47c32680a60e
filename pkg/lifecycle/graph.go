package lifecycle

// transitions is the adjacency table of the lifecycle graph. Every defined
// state appears as a key; terminal states map to an empty list.
var transitions = map[State][]State{
	StateIssueCreated:   {StateTaskQueued},
	StateTaskQueued:     {StatePRCreated},
	StatePRCreated:      {StateCIPending},
	StateCIPending:      {StateCIPassed, StateCIFailed},
	StateCIPassed:       {StateMerged, StateAwaitingReview}, // branch: auto-merge vs. review
	StateCIFailed:       {StateCIPending},                   // retry
	StateAwaitingReview: {StateApproved},
	StateApproved:       {StateMerged}, // rejoin
	StateMerged:         {StateClosed},
	StateClosed:         {}, // terminal
}

// AllowedTransitions returns the legal target states from the given state.
// Unknown states yield an empty slice. The result is a copy.
func AllowedTransitions(from State) []State {
	targets := transitions[from]
	out := make([]State, len(targets))
	copy(out, targets)
	return out
}

// IsAllowed reports whether the edge from → to exists in the lifecycle
// graph. Single adjacency lookup, no path search.
func IsAllowed(from, to State) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}
