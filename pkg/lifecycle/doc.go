// Package lifecycle defines the fixed state graph for the closed-loop
// development lifecycle: issue → PR → CI → merge → close.
//
// The graph is static data, not configuration. It encodes the single
// lifecycle the library models, including the CI retry cycle
// (ci_pending ↔ ci_failed) and the review diamond (ci_passed splits into an
// auto-merge path and a human-review path that rejoin at merged).
//
// # Usage
//
//	if !lifecycle.IsAllowed(lifecycle.StateCIPending, lifecycle.StateMerged) {
//	    // reject the transition
//	}
//
//	for _, s := range lifecycle.AllowedTransitions(lifecycle.StateCIPassed) {
//	    fmt.Println(s) // merged, awaiting_review
//	}
//
// Legality checks are O(1) map lookups; the package holds no mutable state
// and is safe for concurrent use.
package lifecycle
