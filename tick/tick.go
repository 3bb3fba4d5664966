// Package tick is the Tick Engine (spec.md §4.7): it drives one Signal
// State Machine instance forward by one live tick or replays it across a
// backtest candle sweep, coordinating the Exchange Adapter, the Risk
// Engine, the Persistence Store and the Event Bus around the pure
// transition logic in package signalfsm.
//
// Each step follows a run-loop shape (candle in, strategy decision,
// event emission) applied per instance, with the state machine's
// scheduled/partial/trailing/breakeven handling on top; fills are booked
// by bus subscribers, not by this package.
package tick

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/northbeam/tickengine/clock"
	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/instance"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/risk"
	"github.com/northbeam/tickengine/signalfsm"
	"github.com/northbeam/tickengine/store"
)

// Strategy is the consumer-provided schema the Tick Engine drives: the
// subset of strategies.Strategy it calls, i.e. the
// getSignal(symbol) -> SignalDTO | nil contract plus the registration
// metadata (interval, risk wiring) the Risk Engine and interval
// throttling need.
type Strategy interface {
	Name() string
	IntervalMinutes() int
	RiskName() string
	RiskList() []string
	GetSignal(ctx context.Context, symbol string) (*models.SignalDTO, error)
}

// Engine wires the Exchange Adapter, Risk Engine, Persistence Store and
// Event Bus around the pure signalfsm transitions.
type Engine struct {
	Exchange *exchange.Adapter
	Risk     *risk.Engine
	Bus      *eventbus.Bus
	Signals  *store.SignalStore
	Fees     signalfsm.Fees
}

// New constructs a Tick Engine. fees defaults to signalfsm.DefaultFees()
// when the zero value is passed.
func New(ex *exchange.Adapter, riskEngine *risk.Engine, bus *eventbus.Bus, signals *store.SignalStore, fees signalfsm.Fees) *Engine {
	if fees == (signalfsm.Fees{}) {
		fees = signalfsm.DefaultFees()
	}
	return &Engine{Exchange: ex, Risk: riskEngine, Bus: bus, Signals: signals, Fees: fees}
}

func tickTopic(backtest bool) eventbus.Topic {
	if backtest {
		return eventbus.TopicTickBacktest
	}
	return eventbus.TopicTickLive
}

func (e *Engine) persist(key models.InstanceKey, sig *models.Signal) error {
	if sig == nil {
		return e.Signals.Clear(key.String())
	}
	return e.Signals.Save(key.String(), sig)
}

// Tick performs a single live advance for key at the current wall clock.
func (e *Engine) Tick(ctx context.Context, handle *instance.Handle, strategy Strategy, symbol string) (models.TickEvent, error) {
	now := time.Now().UTC()
	tickCtx := clock.WithTick(ctx, clock.Tick{Symbol: symbol, When: now, Backtest: false})

	price, err := e.Exchange.GetAveragePrice(tickCtx, symbol)
	if err != nil {
		return models.TickEvent{}, fmt.Errorf("tick: get average price: %w", err)
	}

	handle.Lock()
	defer handle.Unlock()

	return e.step(tickCtx, handle, strategy, symbol, price, price, price, price, now.UnixMilli(), false)
}

// step implements the fixed per-tick decision order from spec.md §4.6.
// low/high are the candle extremes in backtest mode, or the single VWAP
// value repeated in live mode. candleOpen is the candle's open price
// (also the VWAP value in live mode), used only for the SL/TP tie-break.
func (e *Engine) step(ctx context.Context, handle *instance.Handle, strategy Strategy, symbol string, low, high, currentPrice, candleOpen float64, when int64, backtest bool) (models.TickEvent, error) {
	key := handle.Key
	sig := handle.Current

	base := models.TickEvent{
		CurrentPrice: currentPrice,
		StrategyName: key.StrategyName,
		ExchangeName: key.ExchangeName,
		Symbol:       symbol,
		Backtest:     backtest,
		When:         time.UnixMilli(when).UTC(),
	}

	switch {
	case sig != nil && sig.State == models.StateScheduled:
		return e.stepScheduled(ctx, handle, sig, low, high, when, base)
	case sig == nil:
		return e.stepIdle(ctx, handle, strategy, symbol, currentPrice, when, base)
	default:
		return e.stepActive(ctx, handle, sig, low, high, currentPrice, candleOpen, when, base)
	}
}

func (e *Engine) stepScheduled(ctx context.Context, handle *instance.Handle, sig *models.Signal, low, high float64, when int64, base models.TickEvent) (models.TickEvent, error) {
	key := handle.Key

	if signalfsm.ActivationReached(sig, low, high) {
		signalfsm.Activate(sig, when)
		if err := e.persist(key, sig); err != nil {
			return models.TickEvent{}, fmt.Errorf("tick: persist activation: %w", err)
		}
		base.Action = models.ActionOpened
		base.Signal = sig
		e.Bus.Publish(tickTopic(sig.Backtest), base)

		signalfsm.ActivateImmediate(sig)
		if err := e.persist(key, sig); err != nil {
			return models.TickEvent{}, fmt.Errorf("tick: persist activation: %w", err)
		}
		e.Risk.AddSignal(handle.RiskName, key.ExchangeName, key.FrameName, key.Backtest, sig)

		activeEvent := base
		activeEvent.Action = models.ActionActive
		activeEvent.Signal = sig
		e.Bus.Publish(tickTopic(sig.Backtest), activeEvent)
		return activeEvent, nil
	}

	if signalfsm.ScheduledTimedOut(sig, when) {
		signalfsm.Cancel(sig, models.CancelReasonTimeout, "", when)
		return e.finishCancel(handle, sig, base)
	}
	if signalfsm.PriceRejected(sig, low, high) {
		signalfsm.Cancel(sig, models.CancelReasonPriceReject, "", when)
		return e.finishCancel(handle, sig, base)
	}
	if handle.PendingCancelID != "" {
		id := handle.PendingCancelID
		handle.PendingCancelID = ""
		signalfsm.Cancel(sig, models.CancelReasonUser, id, when)
		return e.finishCancel(handle, sig, base)
	}

	e.maybePing(handle, sig, when)

	base.Action = models.ActionScheduled
	base.Signal = sig
	return base, nil
}

func (e *Engine) finishCancel(handle *instance.Handle, sig *models.Signal, base models.TickEvent) (models.TickEvent, error) {
	key := handle.Key
	if err := e.persist(key, nil); err != nil {
		return models.TickEvent{}, fmt.Errorf("tick: persist cancellation: %w", err)
	}
	e.Risk.RemoveSignal(handle.RiskName, key.ExchangeName, key.FrameName, key.Backtest, sig)
	handle.Current = nil

	base.Action = models.ActionCancelled
	base.Signal = sig
	base.CancelReason = sig.CancelReason
	base.CancelID = sig.CancelID
	e.Bus.Publish(tickTopic(sig.Backtest), base)
	return base, nil
}

func (e *Engine) maybePing(handle *instance.Handle, sig *models.Signal, when int64) {
	minute := when / 60000
	if minute == handle.LastPingMinute {
		return
	}
	handle.LastPingMinute = minute
	e.Bus.Publish(eventbus.TopicPing, models.TickEvent{
		Action: models.ActionScheduled,
		Signal: sig,
		When:   time.UnixMilli(when).UTC(),
	})
}

func (e *Engine) stepIdle(ctx context.Context, handle *instance.Handle, strategy Strategy, symbol string, currentPrice float64, when int64, base models.TickEvent) (models.TickEvent, error) {
	base.Action = models.ActionIdle

	if handle.Stopped {
		return base, nil
	}
	intervalMs := int64(strategy.IntervalMinutes()) * 60000
	if handle.LastSignalAt != 0 && when-handle.LastSignalAt < intervalMs {
		return base, nil
	}

	dto, err := strategy.GetSignal(ctx, symbol)
	if err != nil {
		return models.TickEvent{}, fmt.Errorf("tick: getSignal: %w", err)
	}
	if dto == nil {
		handle.LastSignalAt = when
		return base, nil
	}

	key := handle.Key
	sig, err := signalfsm.NewSignal(*dto, key, currentPrice, when)
	if err != nil {
		return models.TickEvent{}, fmt.Errorf("tick: invalid signal from strategy %s: %w", strategy.Name(), err)
	}

	if err := e.Risk.CheckSignal(strategy.RiskName(), strategy.RiskList(), key.ExchangeName, key.FrameName, key.Backtest, sig); err != nil {
		handle.LastSignalAt = when
		reject := models.RiskRejectEvent{
			Timestamp:           when,
			CurrentPrice:        currentPrice,
			ActivePositionCount: e.Risk.ActiveCount(strategy.RiskName(), key.ExchangeName, key.FrameName, key.Backtest),
			PendingSignal:       dto,
		}
		if r, ok := err.(risk.Reject); ok {
			reject.RejectionID = r.RejectionID
			reject.RejectionNote = r.RejectionNote
		}
		e.Bus.Publish(eventbus.TopicRiskReject, reject)
		log.Info().Str("strategy", strategy.Name()).Str("symbol", symbol).Msg("risk reject, staying idle")
		return base, nil
	}

	handle.LastSignalAt = when
	handle.RiskName = strategy.RiskName()
	handle.RiskList = strategy.RiskList()
	handle.Current = sig

	if err := e.persist(key, sig); err != nil {
		return models.TickEvent{}, fmt.Errorf("tick: persist new signal: %w", err)
	}

	if sig.State == models.StateScheduled {
		base.Action = models.ActionScheduled
		base.Signal = sig
		e.Bus.Publish(tickTopic(sig.Backtest), base)
		return base, nil
	}

	base.Action = models.ActionOpened
	base.Signal = sig
	e.Bus.Publish(tickTopic(sig.Backtest), base)

	signalfsm.ActivateImmediate(sig)
	if err := e.persist(key, sig); err != nil {
		return models.TickEvent{}, fmt.Errorf("tick: persist activation: %w", err)
	}
	e.Risk.AddSignal(strategy.RiskName(), key.ExchangeName, key.FrameName, key.Backtest, sig)

	activeEvent := base
	activeEvent.Action = models.ActionActive
	activeEvent.Signal = sig
	e.Bus.Publish(tickTopic(sig.Backtest), activeEvent)
	return activeEvent, nil
}

func (e *Engine) stepActive(ctx context.Context, handle *instance.Handle, sig *models.Signal, low, high, currentPrice, candleOpen float64, when int64, base models.TickEvent) (models.TickEvent, error) {
	key := handle.Key

	if signalfsm.ActiveTimedOut(sig, when) {
		return e.closeSignal(handle, sig, models.CloseReasonTimeExpired, currentPrice, when, base)
	}

	slHit := signalfsm.StopLossHit(sig, low, high)
	tpHit := signalfsm.TakeProfitHit(sig, low, high)

	switch {
	case slHit && tpHit:
		reason := signalfsm.TieBreak(sig, candleOpen)
		price := sig.EffectiveStopLoss()
		if reason == models.CloseReasonTakeProfit {
			price = sig.EffectiveTakeProfit()
		}
		return e.closeSignal(handle, sig, reason, price, when, base)
	case slHit:
		return e.closeSignal(handle, sig, models.CloseReasonStopLoss, sig.EffectiveStopLoss(), when, base)
	case tpHit:
		return e.closeSignal(handle, sig, models.CloseReasonTakeProfit, sig.EffectiveTakeProfit(), when, base)
	}

	if err := e.persist(key, sig); err != nil {
		return models.TickEvent{}, fmt.Errorf("tick: persist active observation: %w", err)
	}
	base.Action = models.ActionActive
	base.Signal = sig
	e.Bus.Publish(tickTopic(sig.Backtest), base)
	return base, nil
}

func (e *Engine) closeSignal(handle *instance.Handle, sig *models.Signal, reason models.CloseReason, closePrice float64, when int64, base models.TickEvent) (models.TickEvent, error) {
	key := handle.Key
	pnl := signalfsm.Close(sig, reason, closePrice, when, e.Fees)

	if err := e.persist(key, nil); err != nil {
		return models.TickEvent{}, fmt.Errorf("tick: persist close: %w", err)
	}
	e.Risk.RemoveSignal(handle.RiskName, key.ExchangeName, key.FrameName, key.Backtest, sig)
	handle.Current = nil

	base.Action = models.ActionClosed
	base.Signal = sig
	base.CloseReason = reason
	base.CloseTimestamp = when
	base.PnL = &pnl
	e.Bus.Publish(tickTopic(sig.Backtest), base)
	return base, nil
}
