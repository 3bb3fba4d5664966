// Package execution provides the settlement bookkeeping layer.
package execution

import (
	"fmt"

	"github.com/northbeam/tickengine/models"
)

// RiskConfig holds the settlement capital-bookkeeping limits: how many
// simultaneous fills Settlement may carry and how much realized loss it
// may absorb before refusing to book another one. Position-size and
// portfolio-risk gating happen earlier, in risk.Engine's rule tree,
// before a signal is ever allowed to schedule — this config only bounds
// what Settlement does with a signal the Risk Engine already accepted.
type RiskConfig struct {
	// MaxDailyLoss is the realized loss, in account currency, Settlement
	// may absorb before CheckOrder starts refusing fills.
	MaxDailyLoss float64
	// MaxOpenOrders is the maximum number of fills Settlement may carry
	// open at once.
	MaxOpenOrders int
}

// DefaultRiskConfig returns the default settlement bookkeeping limits.
func DefaultRiskConfig() *RiskConfig {
	return &RiskConfig{
		MaxDailyLoss:  500.0, // $500 max daily loss
		MaxOpenOrders: 10,    // 10 open orders max
	}
}

// RiskManager tracks Settlement's open-fill count and realized daily P&L
// against RiskConfig's limits. It is bookkeeping, not a gate: the signal
// that produced an order already passed risk.Engine's CheckSignal before
// Settlement ever calls CheckOrder.
type RiskManager struct {
	config     *RiskConfig
	broker     Broker
	dailyPnL   float64
	openOrders int
}

// NewRiskManager creates a new risk manager.
//
// Args:
//   - config: Risk configuration
//   - broker: Broker for position/balance queries
//
// Returns:
//   - *RiskManager: The risk manager instance
func NewRiskManager(config *RiskConfig, broker Broker) *RiskManager {
	if config == nil {
		config = DefaultRiskConfig()
	}
	return &RiskManager{
		config:     config,
		broker:     broker,
		dailyPnL:   0,
		openOrders: 0,
	}
}

// CheckOrder refuses a settlement fill once the daily loss limit or the
// open-fill ceiling has already been breached.
//
// Args:
//   - order: The order to evaluate
//
// Returns:
//   - error: Risk violation error, or nil if passed
func (rm *RiskManager) CheckOrder(order models.Order) error {
	if rm.dailyPnL < -rm.config.MaxDailyLoss {
		return fmt.Errorf("daily loss limit exceeded: %.2f", rm.dailyPnL)
	}

	if rm.openOrders >= rm.config.MaxOpenOrders {
		return fmt.Errorf("max open orders reached: %d", rm.config.MaxOpenOrders)
	}

	return nil
}

// UpdateDailyPnL updates the daily P&L tracking.
//
// Args:
//   - pnl: P&L change to add
func (rm *RiskManager) UpdateDailyPnL(pnl float64) {
	rm.dailyPnL += pnl
}

// ResetDaily resets the daily tracking (call at market open).
func (rm *RiskManager) ResetDaily() {
	rm.dailyPnL = 0
	rm.openOrders = 0
}

// IncrementOpenOrders increments the open order count.
func (rm *RiskManager) IncrementOpenOrders() {
	rm.openOrders++
}

// DecrementOpenOrders decrements the open order count.
func (rm *RiskManager) DecrementOpenOrders() {
	if rm.openOrders > 0 {
		rm.openOrders--
	}
}

// GetDailyPnL returns the current daily P&L.
func (rm *RiskManager) GetDailyPnL() float64 {
	return rm.dailyPnL
}

// GetConfig returns the risk configuration.
func (rm *RiskManager) GetConfig() *RiskConfig {
	return rm.config
}
