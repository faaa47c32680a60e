// Package loop tracks work items through the fixed development lifecycle
// defined in pkg/lifecycle, enforcing that only legal transitions occur and
// recording a complete, attributable history of every transition.
//
// The package provides four cooperating pieces:
//
//   - Record and TransitionEntry — the tracked work item and its
//     append-only audit trail. Replaying the trail from the initial state
//     always reproduces the record's current state over legal edges.
//
//   - Repository — the storage boundary. Bring your own backend; the
//     reference MemoryRepository ships here, pgstore/mongostore/redisstore
//     provide durable ones. Repositories arbitrate concurrent writes via
//     the record Version token.
//
//   - Service — the transition engine. Validates a requested move against
//     the lifecycle graph, mutates the record, persists it and reports a
//     structured TransitionResult. A failed transition of any kind leaves
//     the durable record byte-for-byte unchanged.
//
//   - Hook — observer callbacks fired after persistence succeeds. Hook
//     errors and panics are logged and absorbed; they never affect the
//     transition outcome or later hooks.
//
// # Usage
//
//	repo := loop.NewMemoryRepository()
//	svc := loop.MustNew(repo, loop.WithHook(notifier.Hook()))
//
//	rec, err := svc.Create(ctx, "https://github.com/org/x/issues/1",
//	    loop.WithRepo("org/x"),
//	    loop.WithAutoMerge(true),
//	)
//	if err != nil { /* ... */ }
//
//	res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued,
//	    "worker.picked_up", nil)
//	if !res.Success { /* inspect res.Err */ }
//
// # Error Handling
//
// Failures are classified so callers can react precisely:
// ErrNotFound (missing record), InvalidTransitionError (illegal edge, with
// the legal target set in the message), ErrStorage (backend read/write
// failure, no automatic retry) and ErrConflict (lost concurrent write,
// retry the whole transition). Predicates such as IsConflictError and
// IsInvalidTransitionError make classification trivial.
//
// # Concurrency
//
// The service holds no shared mutable state besides the hook list; all
// record state lives in the repository. Whether two concurrent transitions
// on the same record race is resolved by the repository: optimistic version
// checks (ErrConflict) or per-record serialization both satisfy the
// contract. MemoryRepository serializes writes and checks versions.
package loop
