// Package controller exposes the per-instance verbs spec.md §4.9 calls
// the Controller API: run, background, stop, cancel, partialProfit,
// partialLoss, trailingStop, breakeven, getData, getReport, dump, list.
// It is the thin orchestration layer api/router.go drives over HTTP.
package controller

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/northbeam/tickengine/instance"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/strategies"
	"github.com/northbeam/tickengine/tick"
)

// Controller wires the Instance Registry and Tick Engine together and
// records every event published on the bus for later reporting/dump.
type Controller struct {
	Instances  *instance.Registry
	Strategies *strategies.Registry
	Engine     *tick.Engine

	recorder *recorder
}

// New builds a Controller. The recorder subscribes to the engine's event
// bus on tick-any, which also receives every partial-profit, partial-loss,
// breakeven and risk-reject event, so every instance's history can be
// reported on and dumped later. If
// settlement is non-nil it is also subscribed, booking a simulated fill
// through the paper-trading stack for every signal that opens or closes.
func New(instances *instance.Registry, strategyRegistry *strategies.Registry, engine *tick.Engine, dumpRoot string, settlement *Settlement) *Controller {
	c := &Controller{
		Instances:  instances,
		Strategies: strategyRegistry,
		Engine:     engine,
		recorder:   newRecorder(dumpRoot),
	}
	c.recorder.subscribe(engine.Bus)
	if settlement != nil {
		settlement.Subscribe(engine.Bus)
	}
	return c
}

func (c *Controller) resolve(key models.InstanceKey) (*instance.Handle, strategies.Strategy, error) {
	strategy, ok := c.Strategies.Get(key.StrategyName)
	if !ok {
		return nil, nil, fmt.Errorf("controller: unknown strategy %q", key.StrategyName)
	}
	handle := c.Instances.Get(key)
	c.rehydrate(key, handle, strategy)
	return handle, strategy, nil
}

// rehydrate restores a freshly constructed Handle's signal from the
// Persistence Store the first time the Controller resolves it, so a
// process restart doesn't silently forget a scheduled or active signal
// (spec.md §4.2/§4.8). A rehydrated signal that is still scheduled,
// opened or active is re-registered in the Risk Engine's ledger, since
// that ledger lives only in memory and would otherwise undercount
// active positions until the instance's next transition.
func (c *Controller) rehydrate(key models.InstanceKey, handle *instance.Handle, strategy strategies.Strategy) {
	handle.Lock()
	defer handle.Unlock()
	if handle.Loaded {
		return
	}
	handle.Loaded = true
	handle.RiskName = strategy.RiskName()
	handle.RiskList = strategy.RiskList()

	sig, ok, err := c.Engine.Signals.Load(key.String())
	if err != nil {
		log.Error().Err(err).Str("key", key.String()).Msg("controller: signal rehydration failed")
		return
	}
	if !ok {
		return
	}

	handle.Current = sig
	switch sig.State {
	case models.StateScheduled, models.StateOpened, models.StateActive:
		c.Engine.Risk.AddSignal(handle.RiskName, key.ExchangeName, key.FrameName, key.Backtest, sig)
	}
	log.Info().Str("key", key.String()).Str("state", string(sig.State)).Msg("controller: signal rehydrated from persistence store")
}

// Run advances key's instance by one live tick.
func (c *Controller) Run(ctx context.Context, key models.InstanceKey) (models.TickEvent, error) {
	handle, strategy, err := c.resolve(key)
	if err != nil {
		return models.TickEvent{}, err
	}
	return c.Engine.Tick(ctx, handle, strategy, key.Symbol)
}

// Background drains a backtest sweep over candles on a goroutine,
// returning a cancel function. The engine finishes the current candle
// before honoring a cancellation (spec.md §5).
func (c *Controller) Background(key models.InstanceKey, candles []models.OHLCV, onEvent func(models.TickEvent), onDone func(error)) (cancel func(), err error) {
	handle, strategy, err := c.resolve(key)
	if err != nil {
		return nil, err
	}
	run := c.Engine.Backtest(handle, strategy, key.Symbol, candles)
	return c.Engine.Background(run, onEvent, onDone), nil
}

// Stop sets key's instance's stop flag. Observed at the top of the next
// tick; does not abort an in-flight tick or force-close an active signal.
func (c *Controller) Stop(key models.InstanceKey) error {
	handle, _, err := c.resolve(key)
	if err != nil {
		return err
	}
	c.Engine.Stop(handle)
	return nil
}

// Cancel requests cancellation of key's scheduled signal, applied on the
// next tick.
func (c *Controller) Cancel(key models.InstanceKey, cancelID string) error {
	handle, _, err := c.resolve(key)
	if err != nil {
		return err
	}
	return c.Engine.Cancel(handle, cancelID)
}

// PartialProfit applies a profit-taking partial close to key's active signal.
func (c *Controller) PartialProfit(key models.InstanceKey, percent, price float64) (bool, error) {
	handle, _, err := c.resolve(key)
	if err != nil {
		return false, err
	}
	return c.Engine.PartialProfit(handle, percent, price)
}

// PartialLoss applies a loss-taking partial close to key's active signal.
func (c *Controller) PartialLoss(key models.InstanceKey, percent, price float64) (bool, error) {
	handle, _, err := c.resolve(key)
	if err != nil {
		return false, err
	}
	return c.Engine.PartialLoss(handle, percent, price)
}

// TrailingStop recomputes key's trailing stop.
func (c *Controller) TrailingStop(key models.InstanceKey, percentShift float64) (bool, error) {
	handle, _, err := c.resolve(key)
	if err != nil {
		return false, err
	}
	return c.Engine.TrailingStop(handle, percentShift)
}

// Breakeven moves key's stop loss to breakeven if eligible.
func (c *Controller) Breakeven(key models.InstanceKey, currentPrice float64) (bool, error) {
	handle, _, err := c.resolve(key)
	if err != nil {
		return false, err
	}
	return c.Engine.Breakeven(handle, currentPrice)
}

// Data is the snapshot GetData returns: an instance's status plus its
// current signal, if any.
type Data struct {
	Key    string          `json:"key"`
	Status instance.Status `json:"status"`
	Signal *models.Signal  `json:"signal,omitempty"`
}

// GetData returns key's instance's current status and signal.
func (c *Controller) GetData(key models.InstanceKey) Data {
	handle := c.Instances.Get(key)
	status, sig := instance.Snapshot(handle)
	return Data{Key: key.String(), Status: status, Signal: sig}
}

// List returns {key, status} for every known instance.
func (c *Controller) List() map[string]instance.Status {
	return c.Instances.List()
}

// GetReport aggregates the closed/cancelled history recorded for key
// since the Controller was constructed.
func (c *Controller) GetReport(key models.InstanceKey) Report {
	return c.recorder.report(key.String())
}

// Dump flushes key's recorded event history to a single JSONL file,
// {dumpRoot}/report/{key}.jsonl, holding every topic's events, per spec.md §6's
// persisted layout.
func (c *Controller) Dump(key models.InstanceKey) error {
	if err := c.recorder.dump(key.String()); err != nil {
		log.Error().Err(err).Str("key", key.String()).Msg("controller: dump failed")
		return err
	}
	return nil
}
