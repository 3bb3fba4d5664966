package tick

import (
	"context"
	"fmt"

	"github.com/northbeam/tickengine/clock"
	"github.com/northbeam/tickengine/instance"
	"github.com/northbeam/tickengine/models"
)

// BacktestRun is the lazy, restartable-only-from-the-beginning candle
// sweep (spec.md §4.7). Construct one with Engine.Backtest and pull
// events with Next until ok is false.
type BacktestRun struct {
	engine   *Engine
	handle   *instance.Handle
	strategy Strategy
	symbol   string
	candles  []models.OHLCV
	idx      int
}

// Backtest constructs a lazy sweep over candles for handle/strategy/symbol.
// Iteration binds the Execution Clock to each candle's Timestamp (the
// start of its period, not its close time) and runs the same state
// machine step logic the live tick uses; a scheduled
// signal's activation is evaluated against the candle's low/high rather
// than a single VWAP value, so intra-candle extremes are honored.
func (e *Engine) Backtest(handle *instance.Handle, strategy Strategy, symbol string, candles []models.OHLCV) *BacktestRun {
	return &BacktestRun{engine: e, handle: handle, strategy: strategy, symbol: symbol, candles: candles}
}

// Next advances the sweep by one candle and returns its TickResult. ok is
// false once every candle has been consumed.
func (r *BacktestRun) Next(ctx context.Context) (event models.TickEvent, ok bool, err error) {
	if r.idx >= len(r.candles) {
		return models.TickEvent{}, false, nil
	}
	candle := r.candles[r.idx]
	r.idx++

	tickCtx := clock.WithTick(ctx, clock.Tick{Symbol: r.symbol, When: candle.Timestamp, Backtest: true})

	r.handle.Lock()
	defer r.handle.Unlock()

	typical := (candle.High + candle.Low + candle.Close) / 3
	event, err = r.engine.step(tickCtx, r.handle, r.strategy, r.symbol, candle.Low, candle.High, typical, candle.Open, candle.Timestamp.UnixMilli(), true)
	if err != nil {
		return models.TickEvent{}, false, fmt.Errorf("backtest: candle %d: %w", r.idx-1, err)
	}
	return event, true, nil
}

// Remaining reports how many candles have not yet been consumed.
func (r *BacktestRun) Remaining() int {
	return len(r.candles) - r.idx
}

// Background drains run to completion on a background goroutine,
// delivering each event to onEvent, and returns a cancel function. The
// engine completes the current candle before honoring a cancellation, as
// spec.md §5 requires.
func (e *Engine) Background(run *BacktestRun, onEvent func(models.TickEvent), onDone func(error)) (cancel func()) {
	ctx, cancelFn := context.WithCancel(context.Background())

	go func() {
		for {
			select {
			case <-ctx.Done():
				if onDone != nil {
					onDone(ctx.Err())
				}
				return
			default:
			}

			event, ok, err := run.Next(ctx)
			if err != nil {
				if onDone != nil {
					onDone(err)
				}
				return
			}
			if !ok {
				if onDone != nil {
					onDone(nil)
				}
				return
			}
			if onEvent != nil {
				onEvent(event)
			}
		}
	}()

	return cancelFn
}
