// Package clock provides the execution clock scoped value threaded through
// a tick: the symbol under evaluation, the "current" instant (which is the
// wall clock in live mode and a replayed candle's close time in backtest
// mode), and whether the call chain is running a backtest.
//
// The scope is carried as a context.Context value, the same pattern the
// rest of this codebase uses for trace IDs and audit fields: within a
// single tick, every exchange query and state mutation observes the same
// Tick by threading the same context through the call chain.
package clock

import (
	"context"
	"time"
)

type contextKey string

const tickKey contextKey = "tickengine_clock_tick"

// Tick is the scoped value every call underneath a tick observes.
type Tick struct {
	Symbol   string
	When     time.Time
	Backtest bool
}

// WithTick returns a new context carrying the given Tick.
func WithTick(ctx context.Context, t Tick) context.Context {
	return context.WithValue(ctx, tickKey, t)
}

// RunInContext installs tick for the duration of fn and its descendants.
// It exists as the named spec operation; it is a thin wrapper over
// WithTick since Go's context propagation already gives the "for the
// duration of fn and its awaited descendants" scoping spec.md asks for.
func RunInContext(ctx context.Context, t Tick, fn func(context.Context)) {
	fn(WithTick(ctx, t))
}

// Current returns the Tick installed on ctx. It panics if none is present:
// every exchange/persistence/state-machine call in this codebase runs
// underneath a tick, and a missing Tick is a programming error, not a
// recoverable runtime condition.
func Current(ctx context.Context) Tick {
	t, ok := ctx.Value(tickKey).(Tick)
	if !ok {
		panic("clock: no Tick installed on context; call clock.WithTick first")
	}
	return t
}

// TryCurrent is the non-panicking variant, used by code that may run
// outside a tick scope (e.g. HTTP handlers building a one-off live Tick).
func TryCurrent(ctx context.Context) (Tick, bool) {
	t, ok := ctx.Value(tickKey).(Tick)
	return t, ok
}
