package risk

import (
	"fmt"
	"math"
	"sync"
)

// MaxOpenPositions rejects a pending signal once its ledger already
// holds n active positions. It generalizes
// execution.RiskManager.CheckOrder's MaxOpenOrders guard from a single
// global counter into a rule any riskName/riskList can reference, gating
// a signal before it schedules rather than bookkeeping a fill after
// Settlement has already placed one.
func MaxOpenPositions(n int) Rule {
	return Leaf(func(ctx Context) error {
		if ctx.ActivePositionCount >= n {
			return Reject{
				RejectionID:   "max_open_positions",
				RejectionNote: fmt.Sprintf("%d active positions at limit %d", ctx.ActivePositionCount, n),
			}
		}
		return nil
	})
}

// MaxRiskPerSignal rejects a pending signal whose stop-loss distance from
// entry, as a fraction of the entry price, exceeds maxFraction. The limit
// is expressed directly against the signal's own prices since signals
// carry no position size of their own.
func MaxRiskPerSignal(maxFraction float64) Rule {
	return Leaf(func(ctx Context) error {
		sig := ctx.PendingSignal
		if sig == nil || sig.PriceOpen == 0 {
			return nil
		}
		fraction := math.Abs(sig.PriceOpen-sig.PriceStopLoss) / sig.PriceOpen
		if fraction > maxFraction {
			return Reject{
				RejectionID:   "max_risk_per_signal",
				RejectionNote: fmt.Sprintf("stop distance %.4f exceeds limit %.4f", fraction, maxFraction),
			}
		}
		return nil
	})
}

// DailyLossTracker accumulates realized P&L across closed signals and
// rejects every new signal once the tracked loss breaches maxLoss. It
// generalizes execution.RiskManager's dailyPnL/MaxDailyLoss fields from a
// single settlement-layer counter into a value the Risk Engine's rule
// tree can gate scheduling on directly, before Settlement ever books a
// fill.
type DailyLossTracker struct {
	mu      sync.Mutex
	maxLoss float64
	pnl     float64
}

// NewDailyLossTracker constructs a tracker that rejects once accumulated
// loss exceeds maxLoss.
func NewDailyLossTracker(maxLoss float64) *DailyLossTracker {
	return &DailyLossTracker{maxLoss: maxLoss}
}

// Record adds a realized P&L delta, positive or negative, to the running
// total. Called from the settlement layer on every closed fill.
func (t *DailyLossTracker) Record(pnl float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pnl += pnl
}

// Reset zeroes the tracked P&L, called at the start of a new trading day.
func (t *DailyLossTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pnl = 0
}

// PnL returns the currently tracked realized P&L.
func (t *DailyLossTracker) PnL() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pnl
}

// Rule returns a Risk Engine rule that rejects every pending signal once
// the tracked loss exceeds the tracker's configured limit.
func (t *DailyLossTracker) Rule() Rule {
	return Leaf(func(Context) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.pnl < -t.maxLoss {
			return Reject{
				RejectionID:   "max_daily_loss",
				RejectionNote: fmt.Sprintf("daily pnl %.2f exceeds limit %.2f", t.pnl, t.maxLoss),
			}
		}
		return nil
	})
}
