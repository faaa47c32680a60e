package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
)

// Service is the transition engine. It validates requested moves against
// the lifecycle graph, appends audit-trail entries, persists through the
// Repository and fires hooks on success.
//
// The service is stateless between calls: every Transition re-fetches the
// record from the repository, and nothing is cached. Concurrency control is
// delegated to the repository's Version contract — a lost race surfaces as
// ErrConflict and the caller retries the whole transition.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time

	mu    sync.RWMutex
	hooks []Hook
}

// New creates a transition service backed by the given repository.
// The repository is required; hooks and logger are optional.
func New(repo Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	s := &Service{
		repo: repo,
		log:  slog.Default(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MustNew is like New but panics on configuration errors, following the
// fail-fast construction pattern.
func MustNew(repo Repository, opts ...Option) *Service {
	s, err := New(repo, opts...)
	if err != nil {
		panic("loop: " + err.Error())
	}
	return s
}

// Repository exposes the underlying storage for callers that need the
// delete/list operations not mirrored on the service surface.
func (s *Service) Repository() Repository {
	return s.repo
}

// AddHook registers a hook that fires after each successful transition.
// Hooks are meant to be registered during setup, before transitions flow.
func (s *Service) AddHook(hook Hook) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Create allocates and persists a new record in the initial state with an
// empty transition history. It returns the stored record, or an error
// joined with ErrStorage if persistence fails; there is no silent retry.
func (s *Service) Create(ctx context.Context, ref string, opts ...CreateOption) (*Record, error) {
	now := s.now()
	record := &Record{
		ID:        uuid.NewString(),
		Ref:       ref,
		State:     lifecycle.Initial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(record)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	stored, err := s.repo.Save(ctx, record)
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return stored, nil
}

// Get retrieves a record by ID. Returns ErrNotFound for an absent ID and an
// error joined with ErrStorage for backend failures.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Join(ErrStorage, err)
	}
	return record, nil
}

// Transition attempts to move a record to the target state.
//
// The algorithm is fetch → validate edge → append history entry → persist →
// fire hooks. A failed legality check leaves state and history untouched; a
// failed persist discards the in-memory mutation, so the durable record is
// unchanged on every failure path. Hooks run only after persistence
// succeeds and never change the result.
func (s *Service) Transition(ctx context.Context, id string, target lifecycle.State, trigger string, metadata map[string]any) TransitionResult {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TransitionResult{Err: err}
		}
		return TransitionResult{Err: errors.Join(ErrStorage, err)}
	}

	current := record.State
	if !lifecycle.IsAllowed(current, target) {
		return TransitionResult{
			Record:        record,
			PreviousState: current,
			Err:           newInvalidTransitionError(current, target),
		}
	}

	now := s.now()
	record.Transitions = append(record.Transitions, TransitionEntry{
		FromState: current,
		ToState:   target,
		Trigger:   trigger,
		Timestamp: now,
		Metadata:  cloneAnyMap(metadata),
	})
	record.State = target
	record.UpdatedAt = now
	if target == lifecycle.StateClosed {
		record.ClosedAt = &now
	}

	stored, err := s.repo.Save(ctx, record)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return TransitionResult{PreviousState: current, Err: err}
		}
		return TransitionResult{PreviousState: current, Err: errors.Join(ErrStorage, err)}
	}

	s.log.InfoContext(ctx, "transition",
		slog.String("record_id", stored.ID),
		slog.String("from", string(current)),
		slog.String("to", string(target)),
		slog.String("trigger", trigger),
	)

	s.mu.RLock()
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	d := dispatcher{hooks: hooks, log: s.log}
	d.fire(ctx, stored, current, target, trigger)

	return TransitionResult{
		Success:       true,
		Record:        stored,
		PreviousState: current,
		NewState:      target,
	}
}
