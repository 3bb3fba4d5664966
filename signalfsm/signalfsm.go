// Package signalfsm is the Signal State Machine (spec.md §4.6): the pure
// transition and accounting logic for one Signal. Every function here
// operates on a *models.Signal value and returns what changed; it
// performs no I/O and knows nothing of the Exchange Adapter, the
// Persistence Store, or the Event Bus. The Tick Engine wires those in.
//
// Percent accounting (tpClosed/slClosed/totalClosed) uses
// shopspring/decimal instead of raw float64 arithmetic, because repeated
// addition would otherwise drift: partials accumulate across many ticks
// and a signal can live for the full length of a backtest.
package signalfsm

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/northbeam/tickengine/models"
)

// ErrBadPartial is returned when a partial percent is outside (0,100].
var ErrBadPartial = errors.New("signalfsm: percent must be in (0, 100]")

// ErrInvalidState is returned when partial/trailing/breakeven is invoked
// with no pending signal, or against a scheduled (not yet active) one.
var ErrInvalidState = errors.New("signalfsm: no active signal for this operation")

// ErrTrailingShiftZero is returned when a trailing stop shift of exactly
// zero, or one outside [-100, 100], is requested; zero carries no
// direction to move the stop.
var ErrTrailingShiftZero = errors.New("signalfsm: trailing shift must be nonzero")

// Fees bundles the round-trip cost assumptions used for breakeven
// thresholds and PnL computation. Defaults mirror spec.md's 0.1% each.
type Fees struct {
	FeePct      float64
	SlippagePct float64
}

// DefaultFees returns the spec's default fee/slippage assumptions.
func DefaultFees() Fees {
	return Fees{FeePct: 0.001, SlippagePct: 0.001}
}

func hundred() decimal.Decimal { return decimal.NewFromInt(100) }

// NewSignal builds a Signal from a user-supplied DTO and the tick
// context it was produced under. currentPrice is the VWAP observed at
// creation time; it becomes priceOpen for an immediate (non-scheduled)
// entry. now is milliseconds UTC.
func NewSignal(dto models.SignalDTO, key models.InstanceKey, currentPrice float64, now int64) (*models.Signal, error) {
	sig := &models.Signal{
		ID:                      uuid.NewString(),
		Symbol:                  key.Symbol,
		StrategyName:            key.StrategyName,
		ExchangeName:            key.ExchangeName,
		FrameName:               key.FrameName,
		Backtest:                key.Backtest,
		Position:                dto.Position,
		PriceTakeProfit:         dto.PriceTakeProfit,
		PriceStopLoss:           dto.PriceStopLoss,
		OriginalPriceTakeProfit: dto.PriceTakeProfit,
		OriginalPriceStopLoss:   dto.PriceStopLoss,
		ScheduledAt:             now,
		MinuteEstimatedTime:     dto.MinuteEstimatedTime,
		Note:                    dto.Note,
		PartialHistory:          []models.PartialEntry{},
	}

	if dto.PriceOpen != 0 {
		sig.PriceOpen = dto.PriceOpen
		sig.IsScheduled = true
		sig.State = models.StateScheduled
	} else {
		sig.PriceOpen = currentPrice
		sig.IsScheduled = false
		sig.State = models.StateOpened
		sig.PendingAt = now
	}

	if err := validateSideRelationship(sig); err != nil {
		return nil, err
	}
	return sig, nil
}

func validateSideRelationship(sig *models.Signal) error {
	switch sig.Position {
	case models.SideLong:
		if !(sig.OriginalPriceStopLoss < sig.PriceOpen && sig.PriceOpen < sig.OriginalPriceTakeProfit) {
			return fmt.Errorf("signalfsm: long signal requires stopLoss < priceOpen < takeProfit, got %v < %v < %v",
				sig.OriginalPriceStopLoss, sig.PriceOpen, sig.OriginalPriceTakeProfit)
		}
	case models.SideShort:
		if !(sig.OriginalPriceTakeProfit < sig.PriceOpen && sig.PriceOpen < sig.OriginalPriceStopLoss) {
			return fmt.Errorf("signalfsm: short signal requires takeProfit < priceOpen < stopLoss, got %v < %v < %v",
				sig.OriginalPriceTakeProfit, sig.PriceOpen, sig.OriginalPriceStopLoss)
		}
	default:
		return fmt.Errorf("signalfsm: unknown position side %q", sig.Position)
	}
	return nil
}

// ActivationReached reports whether a scheduled signal's entry price has
// been touched by the given low/high window (a single VWAP value passed
// as both low and high in live mode).
func ActivationReached(sig *models.Signal, low, high float64) bool {
	if sig.Position == models.SideLong {
		return low <= sig.PriceOpen
	}
	return high >= sig.PriceOpen
}

// PriceRejected reports whether price has moved adversely past the stop
// loss before activation, the pessimistic price_reject trigger.
func PriceRejected(sig *models.Signal, low, high float64) bool {
	if sig.Position == models.SideLong {
		return low <= sig.PriceStopLoss
	}
	return high >= sig.PriceStopLoss
}

// ScheduledTimedOut reports whether a scheduled signal has waited
// minuteEstimatedTime minutes without activating.
func ScheduledTimedOut(sig *models.Signal, now int64) bool {
	return now-sig.ScheduledAt >= int64(sig.MinuteEstimatedTime)*60000
}

// Activate transitions a scheduled signal to opened.
func Activate(sig *models.Signal, now int64) {
	sig.State = models.StateOpened
	sig.PendingAt = now
	sig.IsScheduled = false
}

// ActivateImmediate transitions a fresh opened signal to active; the
// Tick Engine calls this on the same tick it emits "opened", per the
// fall-through rule in spec.md §4.6 step 3.
func ActivateImmediate(sig *models.Signal) {
	sig.State = models.StateActive
}

// Cancel moves a scheduled signal to cancelled.
func Cancel(sig *models.Signal, reason models.CancelReason, cancelID string, now int64) {
	if cancelID == "" {
		cancelID = uuid.NewString()
	}
	sig.State = models.StateCancelled
	sig.CancelReason = reason
	sig.CancelID = cancelID
	sig.CloseTime = now
}

// ActiveTimedOut reports whether an active position has run past its
// minuteEstimatedTime budget.
func ActiveTimedOut(sig *models.Signal, now int64) bool {
	return now-sig.PendingAt >= int64(sig.MinuteEstimatedTime)*60000
}

// StopLossHit reports whether price crosses the effective stop loss. In
// backtest mode low/high are the candle's extremes; in live mode pass
// currentPrice as both.
func StopLossHit(sig *models.Signal, low, high float64) bool {
	sl := sig.EffectiveStopLoss()
	if sig.Position == models.SideLong {
		return low <= sl
	}
	return high >= sl
}

// TakeProfitHit reports whether price crosses the effective take profit.
func TakeProfitHit(sig *models.Signal, low, high float64) bool {
	tp := sig.EffectiveTakeProfit()
	if sig.Position == models.SideLong {
		return high >= tp
	}
	return low <= tp
}

// TieBreak resolves a single candle crossing both SL and TP: pessimistic
// rule, SL wins for long if the candle opened below entry, TP otherwise;
// mirrored for short.
func TieBreak(sig *models.Signal, candleOpen float64) models.CloseReason {
	if sig.Position == models.SideLong {
		if candleOpen < sig.PriceOpen {
			return models.CloseReasonStopLoss
		}
		return models.CloseReasonTakeProfit
	}
	if candleOpen > sig.PriceOpen {
		return models.CloseReasonStopLoss
	}
	return models.CloseReasonTakeProfit
}

// Close finalizes a signal at closePrice/now with reason, and returns the
// realized PnL.
func Close(sig *models.Signal, reason models.CloseReason, closePrice float64, now int64, fees Fees) models.PnL {
	sig.State = models.StateClosed
	sig.CloseReason = reason
	sig.ClosePrice = closePrice
	sig.CloseTime = now

	pnlPct := computePnL(sig, closePrice, fees)
	return models.PnL{
		PnLPercentage: pnlPct,
		PriceOpen:     sig.PriceOpen,
		PriceClose:    closePrice,
	}
}

// perLegPnl is the percentage return of one leg (entry→exit at the given
// price) after fees and adverse slippage skew, expressed as a fraction
// (not yet a percent).
func perLegPnl(position models.Side, priceOpen, priceExit float64, fees Fees) float64 {
	adverseSign := 1.0
	if position == models.SideShort {
		adverseSign = -1.0
	}
	entry := priceOpen * (1 + adverseSign*fees.SlippagePct)
	exit := priceExit * (1 - adverseSign*fees.SlippagePct)

	var raw float64
	if position == models.SideLong {
		raw = (exit - entry) / entry
	} else {
		raw = (entry - exit) / entry
	}
	return raw - 2*fees.FeePct
}

// computePnL implements spec.md's weighted-partials-plus-remainder
// formula.
func computePnL(sig *models.Signal, closePrice float64, fees Fees) float64 {
	var sum float64
	for _, p := range sig.PartialHistory {
		sum += p.Percent * perLegPnl(sig.Position, sig.PriceOpen, p.Price, fees)
	}
	remainder := 100 - sig.TotalClosed
	sum += remainder * perLegPnl(sig.Position, sig.PriceOpen, closePrice, fees)
	return sum / 100
}

// addPartial is the shared idempotent append used by PartialProfit and
// PartialLoss.
func addPartial(sig *models.Signal, kind models.PartialKind, percent, price float64) (bool, error) {
	if sig.State != models.StateActive {
		return false, ErrInvalidState
	}
	if percent <= 0 || percent > 100 {
		return false, ErrBadPartial
	}

	current := decimal.NewFromFloat(sig.TotalClosed)
	add := decimal.NewFromFloat(percent)
	if current.Add(add).GreaterThan(hundred()) {
		return false, nil
	}

	sig.PartialHistory = append(sig.PartialHistory, models.PartialEntry{Type: kind, Percent: percent, Price: price})

	switch kind {
	case models.PartialProfit:
		sig.TPClosed, _ = decimal.NewFromFloat(sig.TPClosed).Add(add).Float64()
	case models.PartialLoss:
		sig.SLClosed, _ = decimal.NewFromFloat(sig.SLClosed).Add(add).Float64()
	}
	sig.TotalClosed, _ = decimal.NewFromFloat(sig.TPClosed).Add(decimal.NewFromFloat(sig.SLClosed)).Float64()
	return true, nil
}

// PartialProfit appends a profit-taking partial close. It is a no-op
// (not an error) if totalClosed+percent would exceed 100, so retries are
// safe.
func PartialProfit(sig *models.Signal, percent, price float64) (bool, error) {
	return addPartial(sig, models.PartialProfit, percent, price)
}

// PartialLoss is the symmetric loss-taking partial close.
func PartialLoss(sig *models.Signal, percent, price float64) (bool, error) {
	return addPartial(sig, models.PartialLoss, percent, price)
}

// TrailingStop recomputes the trailing stop loss from a percent shift of
// the original entry-to-stop distance and applies it only if it is
// strictly better than the current effective stop and does not cross
// priceOpen.
func TrailingStop(sig *models.Signal, percentShift float64) (bool, error) {
	if sig.State != models.StateActive {
		return false, ErrInvalidState
	}
	if percentShift == 0 || percentShift < -100 || percentShift > 100 {
		return false, ErrTrailingShiftZero
	}

	d := sig.PriceOpen - sig.OriginalPriceStopLoss
	if d < 0 {
		d = -d
	}

	sign := 1.0
	if sig.Position == models.SideShort {
		sign = -1.0
	}
	newSL := sig.PriceOpen - sign*d*(1+percentShift/100)

	current := sig.EffectiveStopLoss()
	var better bool
	if sig.Position == models.SideLong {
		better = newSL > current
	} else {
		better = newSL < current
	}
	if !better {
		return false, nil
	}

	crossesEntry := (sig.Position == models.SideLong && newSL >= sig.PriceOpen) ||
		(sig.Position == models.SideShort && newSL <= sig.PriceOpen)
	if crossesEntry {
		return false, nil
	}

	sig.TrailingPriceStopLoss = &newSL
	return true, nil
}

// Breakeven moves the stop loss to priceOpen once profit-direction
// progress from priceOpen to currentPrice reaches 2*(feePct+slippagePct).
// It is idempotent: once the effective SL has reached priceOpen, further
// calls return false without mutation.
func Breakeven(sig *models.Signal, currentPrice float64, fees Fees) bool {
	if sig.State != models.StateActive {
		return false
	}

	effective := sig.EffectiveStopLoss()
	if effective == sig.PriceOpen {
		return false
	}

	threshold := 2 * (fees.FeePct + fees.SlippagePct)
	var progress float64
	if sig.Position == models.SideLong {
		progress = (currentPrice - sig.PriceOpen) / sig.PriceOpen
	} else {
		progress = (sig.PriceOpen - currentPrice) / sig.PriceOpen
	}
	if progress < threshold {
		return false
	}

	breakevenPrice := sig.PriceOpen
	sig.TrailingPriceStopLoss = &breakevenPrice
	return true
}

// MillisNow converts a time.Time to the integer-millisecond UTC
// timestamp every Signal field uses.
func MillisNow(t time.Time) int64 {
	return t.UnixMilli()
}
