package loop

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
)

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStorage indicates the repository failed to read or write.
	ErrStorage = errors.New("storage operation failed")

	// ErrConflict indicates a concurrent write won the race; the caller
	// read stale state and should retry the whole transition.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrInvalidRecord indicates the record failed field validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrHistoryCorrupt indicates the transition history does not replay
	// to the record's current state.
	ErrHistoryCorrupt = errors.New("transition history corrupt")

	// ErrRepositoryNil is returned when a nil repository is provided.
	ErrRepositoryNil = errors.New("repository cannot be nil")
)

// InvalidTransitionError indicates the requested edge is not in the
// lifecycle graph from the record's current state. The message names the
// attempted edge and enumerates the legal targets, since explaining a
// rejection is itself audit-relevant output.
type InvalidTransitionError struct {
	From    lifecycle.State
	To      lifecycle.State
	Allowed []lifecycle.State
}

func (e *InvalidTransitionError) Error() string {
	allowed := "none (terminal)"
	if len(e.Allowed) > 0 {
		names := make([]string, len(e.Allowed))
		for i, s := range e.Allowed {
			names[i] = string(s)
		}
		allowed = strings.Join(names, ", ")
	}
	return fmt.Sprintf("invalid transition: %s → %s; allowed from %s: %s",
		e.From, e.To, e.From, allowed)
}

func newInvalidTransitionError(from, to lifecycle.State) *InvalidTransitionError {
	return &InvalidTransitionError{
		From:    from,
		To:      to,
		Allowed: lifecycle.AllowedTransitions(from),
	}
}

// IsInvalidTransitionError reports whether err is an InvalidTransitionError.
func IsInvalidTransitionError(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// IsNotFoundError reports whether err indicates a missing record.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError reports whether err indicates a lost concurrent write,
// distinguishable from ErrStorage so callers can retry instead of abort.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStorageError reports whether err indicates a repository read/write
// failure.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}
