package loop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/loopforge/pkg/lifecycle"
)

// Hook is a callback fired after a successful transition. It observes the
// durable record (persistence has already succeeded when it runs) together
// with the edge that was taken and the trigger that caused it.
//
// Hooks run synchronously in registration order on the transition call
// path, so a slow hook delays the caller; keep them bounded or hand off to
// a goroutine inside the hook. A hook's error or panic is logged and
// absorbed — it never reaches the transition caller and never stops
// subsequent hooks.
type Hook func(ctx context.Context, record *Record, from, to lifecycle.State, trigger string) error

// dispatcher invokes registered hooks, isolating each hook's failure.
type dispatcher struct {
	hooks []Hook
	log   *slog.Logger
}

// fire runs every hook in order. Each invocation is individually scoped so
// that an error or panic in one hook cannot suppress the rest.
func (d *dispatcher) fire(ctx context.Context, record *Record, from, to lifecycle.State, trigger string) {
	for i, hook := range d.hooks {
		if hook == nil {
			continue
		}
		if err := d.invoke(ctx, hook, record, from, to, trigger); err != nil {
			d.log.WarnContext(ctx, "transition hook failed",
				slog.Int("hook", i),
				slog.String("record_id", record.ID),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
				slog.String("trigger", trigger),
				slog.Any("error", err),
			)
		}
	}
}

func (d *dispatcher) invoke(ctx context.Context, hook Hook, record *Record, from, to lifecycle.State, trigger string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook(ctx, record, from, to, trigger)
}
