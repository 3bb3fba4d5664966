package tick

import (
	"fmt"
	"time"

	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/instance"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/signalfsm"
)

// Commands apply user-initiated operations against an instance's current
// signal. They take the instance lock themselves, the same mutual
// exclusion primitive a tick holds, so a command and a tick for the same
// key never interleave (spec.md §5).

// PartialProfit appends a profit-taking partial close and, if applied,
// publishes a partial-profit event.
func (e *Engine) PartialProfit(handle *instance.Handle, percent, price float64) (bool, error) {
	return e.partial(handle, models.PartialProfit, percent, price)
}

// PartialLoss is the symmetric loss-taking partial close.
func (e *Engine) PartialLoss(handle *instance.Handle, percent, price float64) (bool, error) {
	return e.partial(handle, models.PartialLoss, percent, price)
}

func (e *Engine) partial(handle *instance.Handle, kind models.PartialKind, percent, price float64) (bool, error) {
	handle.Lock()
	defer handle.Unlock()

	sig := handle.Current
	if sig == nil {
		return false, signalfsm.ErrInvalidState
	}

	var applied bool
	var err error
	if kind == models.PartialProfit {
		applied, err = signalfsm.PartialProfit(sig, percent, price)
	} else {
		applied, err = signalfsm.PartialLoss(sig, percent, price)
	}
	if err != nil || !applied {
		return applied, err
	}

	if err := e.persist(handle.Key, sig); err != nil {
		return false, fmt.Errorf("tick: persist partial: %w", err)
	}

	action := "profit"
	topic := eventbus.TopicPartialProfit
	if kind == models.PartialLoss {
		action = "loss"
		topic = eventbus.TopicPartialLoss
	}
	e.Bus.Publish(topic, partialEvent(sig, action, price))
	return true, nil
}

func partialEvent(sig *models.Signal, action string, currentPrice float64) models.PartialEvent {
	return models.PartialEvent{
		Timestamp:               time.Now().UnixMilli(),
		Action:                  action,
		SignalID:                sig.ID,
		Position:                sig.Position,
		CurrentPrice:            currentPrice,
		Level:                   len(sig.PartialHistory),
		PriceOpen:               sig.PriceOpen,
		PriceTakeProfit:         sig.PriceTakeProfit,
		PriceStopLoss:           sig.EffectiveStopLoss(),
		OriginalPriceTakeProfit: sig.OriginalPriceTakeProfit,
		OriginalPriceStopLoss:   sig.OriginalPriceStopLoss,
		TotalExecuted:           sig.TotalClosed,
		PartialHistory:          sig.PartialHistory,
		Note:                    sig.Note,
		PendingAt:               sig.PendingAt,
		ScheduledAt:             sig.ScheduledAt,
		MinuteEstimatedTime:     sig.MinuteEstimatedTime,
	}
}

// TrailingStop recomputes the trailing stop for handle's current signal.
func (e *Engine) TrailingStop(handle *instance.Handle, percentShift float64) (bool, error) {
	handle.Lock()
	defer handle.Unlock()

	sig := handle.Current
	if sig == nil {
		return false, signalfsm.ErrInvalidState
	}

	applied, err := signalfsm.TrailingStop(sig, percentShift)
	if err != nil || !applied {
		return applied, err
	}
	if err := e.persist(handle.Key, sig); err != nil {
		return false, fmt.Errorf("tick: persist trailing stop: %w", err)
	}
	return true, nil
}

// Breakeven moves handle's current signal's stop loss to breakeven if
// eligible, publishing a breakeven event on success.
func (e *Engine) Breakeven(handle *instance.Handle, currentPrice float64) (bool, error) {
	handle.Lock()
	defer handle.Unlock()

	sig := handle.Current
	if sig == nil {
		return false, signalfsm.ErrInvalidState
	}

	moved := signalfsm.Breakeven(sig, currentPrice, e.Fees)
	if !moved {
		return false, nil
	}
	if err := e.persist(handle.Key, sig); err != nil {
		return false, fmt.Errorf("tick: persist breakeven: %w", err)
	}

	e.Bus.Publish(eventbus.TopicBreakeven, partialEvent(sig, "breakeven", currentPrice))
	return true, nil
}

// Cancel requests cancellation of handle's current scheduled signal. The
// cancellation is observed and applied on the instance's next tick, not
// immediately, so that the Signal State Machine's transition discipline
// (every mutation is a step inside a tick) is preserved.
func (e *Engine) Cancel(handle *instance.Handle, cancelID string) error {
	handle.Lock()
	defer handle.Unlock()

	if handle.Current == nil || handle.Current.State != models.StateScheduled {
		return nil
	}
	if cancelID == "" {
		cancelID = fmt.Sprintf("cancel-%d", time.Now().UnixNano())
	}
	handle.PendingCancelID = cancelID
	return nil
}

// Stop sets the instance's stop flag, preventing new getSignal calls
// starting with the next idle tick. It does not force-close an active
// signal.
func (e *Engine) Stop(handle *instance.Handle) {
	handle.Lock()
	defer handle.Unlock()
	handle.Stopped = true
}
