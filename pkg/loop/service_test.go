package loop_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
	"github.com/dmitrymomot/loopforge/pkg/loop"
)

// flakyRepo wraps a real repository and injects failures per operation.
type flakyRepo struct {
	inner   loop.Repository
	getErr  error
	saveErr error
}

func (f *flakyRepo) Save(ctx context.Context, record *loop.Record) (*loop.Record, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return f.inner.Save(ctx, record)
}

func (f *flakyRepo) Get(ctx context.Context, id string) (*loop.Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.inner.Get(ctx, id)
}

func (f *flakyRepo) Delete(ctx context.Context, id string) (bool, error) {
	return f.inner.Delete(ctx, id)
}

func (f *flakyRepo) ListByState(ctx context.Context, state lifecycle.State, limit int) ([]*loop.Record, error) {
	return f.inner.ListByState(ctx, state, limit)
}

func newTestService(t *testing.T, opts ...loop.Option) (*loop.Service, *loop.MemoryRepository) {
	t.Helper()
	repo := loop.NewMemoryRepository()
	opts = append(opts, loop.WithLogger(slog.New(slog.DiscardHandler)))
	svc, err := loop.New(repo, opts...)
	require.NoError(t, err)
	return svc, repo
}

// advance drives a record along a path of states, failing the test on any
// rejected step.
func advance(t *testing.T, svc *loop.Service, id string, path ...lifecycle.State) loop.TransitionResult {
	t.Helper()
	var res loop.TransitionResult
	for _, target := range path {
		res = svc.Transition(context.Background(), id, target, "test."+string(target), nil)
		require.True(t, res.Success, "transition to %s failed: %v", target, res.Err)
	}
	return res
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil repository", func(t *testing.T) {
		t.Parallel()
		_, err := loop.New(nil)
		assert.ErrorIs(t, err, loop.ErrRepositoryNil)
	})

	t.Run("must new panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { loop.MustNew(nil) })
	})
}

func TestCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "https://github.com/org/x/issues/42")
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, lifecycle.StateIssueCreated, rec.State)
		assert.Empty(t, rec.Transitions)
		assert.False(t, rec.AutoMerge)
		assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
		assert.Nil(t, rec.ClosedAt)
	})

	t.Run("options", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "https://github.com/org/x/issues/7",
			loop.WithRepo("org/x"),
			loop.WithRefNumber(7),
			loop.WithAutoMerge(true),
			loop.WithLabels(map[string]string{"team": "infra"}),
			loop.WithMetadata(map[string]any{"priority": "high"}),
		)
		require.NoError(t, err)
		assert.Equal(t, "org/x", rec.Repo)
		assert.Equal(t, 7, rec.RefNumber)
		assert.True(t, rec.AutoMerge)
		assert.Equal(t, "infra", rec.Labels["team"])
		assert.Equal(t, "high", rec.Metadata["priority"])
	})

	t.Run("unique ids", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		seen := make(map[string]bool)
		for range 100 {
			rec, err := svc.Create(ctx, "ref")
			require.NoError(t, err)
			assert.False(t, seen[rec.ID], "duplicate record ID %s", rec.ID)
			seen[rec.ID] = true
		}
	})

	t.Run("missing ref", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		_, err := svc.Create(ctx, "")
		assert.ErrorIs(t, err, loop.ErrInvalidRecord)
	})

	t.Run("persistence failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("disk on fire")
		repo := &flakyRepo{inner: loop.NewMemoryRepository(), saveErr: boom}
		svc, err := loop.New(repo, loop.WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)

		_, err = svc.Create(ctx, "ref")
		assert.ErrorIs(t, err, loop.ErrStorage)
		assert.ErrorIs(t, err, boom)
	})
}

func TestTransition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("issue to queue scenario", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "https://x/issues/1",
			loop.WithRepo("org/x"), loop.WithAutoMerge(true))
		require.NoError(t, err)

		res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "worker.picked_up", nil)
		require.True(t, res.Success)
		assert.Equal(t, lifecycle.StateIssueCreated, res.PreviousState)
		assert.Equal(t, lifecycle.StateTaskQueued, res.NewState)
		require.Len(t, res.Record.Transitions, 1)

		// An illegal jump straight to merged is rejected with the legal
		// target set named in the error.
		res = svc.Transition(ctx, rec.ID, lifecycle.StateMerged, "yolo", nil)
		require.False(t, res.Success)
		require.True(t, loop.IsInvalidTransitionError(res.Err))

		var invalid *loop.InvalidTransitionError
		require.ErrorAs(t, res.Err, &invalid)
		assert.Equal(t, lifecycle.StateTaskQueued, invalid.From)
		assert.Equal(t, lifecycle.StateMerged, invalid.To)
		assert.Equal(t, []lifecycle.State{lifecycle.StatePRCreated}, invalid.Allowed)
		assert.Contains(t, res.Err.Error(), "task_queued")
		assert.Contains(t, res.Err.Error(), "pr_created")

		// The stored record kept its state and history.
		stored, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StateTaskQueued, stored.State)
		assert.Len(t, stored.Transitions, 1)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		res := svc.Transition(ctx, "missing", lifecycle.StateTaskQueued, "t", nil)
		assert.False(t, res.Success)
		assert.True(t, loop.IsNotFoundError(res.Err))
	})

	t.Run("metadata recorded on entry", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "worker.picked_up",
			map[string]any{"worker": "w-17"})
		require.True(t, res.Success)

		entry := res.Record.Transitions[0]
		assert.Equal(t, lifecycle.StateIssueCreated, entry.FromState)
		assert.Equal(t, lifecycle.StateTaskQueued, entry.ToState)
		assert.Equal(t, "worker.picked_up", entry.Trigger)
		assert.Equal(t, "w-17", entry.Metadata["worker"])
		assert.False(t, entry.Timestamp.IsZero())
	})

	t.Run("terminal edge sets closed_at", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		res := advance(t, svc, rec.ID,
			lifecycle.StateTaskQueued, lifecycle.StatePRCreated,
			lifecycle.StateCIPending, lifecycle.StateCIPassed,
			lifecycle.StateMerged, lifecycle.StateClosed)
		require.NotNil(t, res.Record.ClosedAt)
		assert.Equal(t, res.Record.UpdatedAt, *res.Record.ClosedAt)
	})

	t.Run("terminal state rejects everything", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)
		advance(t, svc, rec.ID,
			lifecycle.StateTaskQueued, lifecycle.StatePRCreated,
			lifecycle.StateCIPending, lifecycle.StateCIPassed,
			lifecycle.StateMerged, lifecycle.StateClosed)

		for _, target := range lifecycle.States() {
			res := svc.Transition(ctx, rec.ID, target, "necromancy", nil)
			assert.False(t, res.Success, "closed → %s should fail", target)
			assert.True(t, loop.IsInvalidTransitionError(res.Err))
		}
	})

	t.Run("retry cycle is repeatable", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)
		advance(t, svc, rec.ID,
			lifecycle.StateTaskQueued, lifecycle.StatePRCreated, lifecycle.StateCIPending)

		for i := range 5 {
			res := svc.Transition(ctx, rec.ID, lifecycle.StateCIFailed, fmt.Sprintf("ci.failed.%d", i), nil)
			require.True(t, res.Success)
			res = svc.Transition(ctx, rec.ID, lifecycle.StateCIPending, fmt.Sprintf("ci.retry.%d", i), nil)
			require.True(t, res.Success)
		}

		stored, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StateCIPending, stored.State)
		assert.Len(t, stored.Transitions, 13)
		assert.NoError(t, stored.Replay())
	})

	t.Run("review path rejoins at merged", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		res := advance(t, svc, rec.ID,
			lifecycle.StateTaskQueued, lifecycle.StatePRCreated,
			lifecycle.StateCIPending, lifecycle.StateCIPassed,
			lifecycle.StateAwaitingReview, lifecycle.StateApproved,
			lifecycle.StateMerged, lifecycle.StateClosed)
		assert.Equal(t, lifecycle.StateClosed, res.NewState)
		assert.NoError(t, res.Record.Replay())
	})

	t.Run("history grows by exactly one per success", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		path := []lifecycle.State{
			lifecycle.StateTaskQueued, lifecycle.StatePRCreated,
			lifecycle.StateCIPending, lifecycle.StateCIPassed,
		}
		for i, target := range path {
			res := svc.Transition(ctx, rec.ID, target, "t", nil)
			require.True(t, res.Success)
			assert.Len(t, res.Record.Transitions, i+1)
		}
	})

	t.Run("failed legality check leaves record untouched", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)
		advance(t, svc, rec.ID, lifecycle.StateTaskQueued)

		before, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)

		res := svc.Transition(ctx, rec.ID, lifecycle.StateClosed, "t", nil)
		require.False(t, res.Success)

		after, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("failed persist leaves record untouched", func(t *testing.T) {
		t.Parallel()
		inner := loop.NewMemoryRepository()
		flaky := &flakyRepo{inner: inner}
		svc, err := loop.New(flaky, loop.WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		before, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)

		flaky.saveErr = errors.New("write refused")
		res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "t", nil)
		require.False(t, res.Success)
		assert.True(t, loop.IsStorageError(res.Err))

		flaky.saveErr = nil
		after, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("storage failure on fetch", func(t *testing.T) {
		t.Parallel()
		flaky := &flakyRepo{inner: loop.NewMemoryRepository(), getErr: errors.New("socket closed")}
		svc, err := loop.New(flaky, loop.WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)

		res := svc.Transition(ctx, "any", lifecycle.StateTaskQueued, "t", nil)
		assert.False(t, res.Success)
		assert.True(t, loop.IsStorageError(res.Err))
		assert.False(t, loop.IsNotFoundError(res.Err))
	})

	t.Run("conflict is distinguishable from storage error", func(t *testing.T) {
		t.Parallel()
		flaky := &flakyRepo{inner: loop.NewMemoryRepository()}
		svc, err := loop.New(flaky, loop.WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		flaky.saveErr = loop.ErrConflict
		res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "t", nil)
		require.False(t, res.Success)
		assert.True(t, loop.IsConflictError(res.Err))
		assert.False(t, loop.IsStorageError(res.Err))
	})

	t.Run("duplicate call fails after state advanced", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		first := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "t", nil)
		require.True(t, first.Success)

		second := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "t", nil)
		assert.False(t, second.Success)
		assert.True(t, loop.IsInvalidTransitionError(second.Err))
	})

	t.Run("updated_at changes only on success", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "t", nil)
		require.True(t, res.Success)
		updatedAt := res.Record.UpdatedAt

		res = svc.Transition(ctx, rec.ID, lifecycle.StateMerged, "t", nil)
		require.False(t, res.Success)

		stored, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, updatedAt, stored.UpdatedAt)
	})
}

func TestHooks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fire in registration order with durable record", func(t *testing.T) {
		t.Parallel()
		var order []string

		makeHook := func(name string) loop.Hook {
			return func(ctx context.Context, record *loop.Record, from, to lifecycle.State, trigger string) error {
				order = append(order, name)
				assert.Equal(t, lifecycle.StateIssueCreated, from)
				assert.Equal(t, lifecycle.StateTaskQueued, to)
				assert.Equal(t, "worker.picked_up", trigger)
				assert.Equal(t, lifecycle.StateTaskQueued, record.State)
				return nil
			}
		}

		svc, _ := newTestService(t, loop.WithHooks(makeHook("first"), makeHook("second")))
		svc.AddHook(makeHook("third"))

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "worker.picked_up", nil)
		require.True(t, res.Success)
		assert.Equal(t, []string{"first", "second", "third"}, order)
	})

	t.Run("failing hook does not affect result or later hooks", func(t *testing.T) {
		t.Parallel()
		var secondRan bool

		svc, _ := newTestService(t,
			loop.WithHook(func(ctx context.Context, record *loop.Record, from, to lifecycle.State, trigger string) error {
				return errors.New("hook exploded")
			}),
			loop.WithHook(func(ctx context.Context, record *loop.Record, from, to lifecycle.State, trigger string) error {
				secondRan = true
				return nil
			}),
		)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "t", nil)
		assert.True(t, res.Success)
		assert.True(t, secondRan)
	})

	t.Run("panicking hook is absorbed", func(t *testing.T) {
		t.Parallel()
		var secondRan bool

		svc, _ := newTestService(t,
			loop.WithHook(func(ctx context.Context, record *loop.Record, from, to lifecycle.State, trigger string) error {
				panic("hook lost its mind")
			}),
			loop.WithHook(func(ctx context.Context, record *loop.Record, from, to lifecycle.State, trigger string) error {
				secondRan = true
				return nil
			}),
		)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		res := svc.Transition(ctx, rec.ID, lifecycle.StateTaskQueued, "t", nil)
		assert.True(t, res.Success)
		assert.True(t, secondRan)
	})

	t.Run("no hooks fire on failed transition", func(t *testing.T) {
		t.Parallel()
		var fired bool

		svc, _ := newTestService(t,
			loop.WithHook(func(ctx context.Context, record *loop.Record, from, to lifecycle.State, trigger string) error {
				fired = true
				return nil
			}),
		)

		rec, err := svc.Create(ctx, "ref")
		require.NoError(t, err)

		res := svc.Transition(ctx, rec.ID, lifecycle.StateMerged, "t", nil)
		require.False(t, res.Success)
		assert.False(t, fired)
	})
}

func TestGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		rec, err := svc.Create(ctx, "ref", loop.WithRepo("org/x"))
		require.NoError(t, err)

		got, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		_, err := svc.Get(ctx, "missing")
		assert.True(t, loop.IsNotFoundError(err))
	})
}
