// Package strategies provides trading strategy implementations.
package strategies

import (
	"fmt"

	"github.com/northbeam/tickengine/exchange"
)

// NewStrategyByName creates a strategy instance by name, wired to the
// given Exchange Adapter and risk policy.
func NewStrategyByName(name string, ex *exchange.Adapter, riskName string, riskList []string) (Strategy, error) {
	switch name {
	case "ma_crossover":
		return NewMACrossover(ex, riskName, riskList), nil
	case "rsi_momentum":
		return NewRSIStrategy(ex, riskName, riskList), nil
	case "bb_mean_reversion":
		return NewBollingerBandsStrategy(ex, riskName, riskList), nil
	case "macd_trend_follower":
		return NewMACDStrategy(ex, riskName, riskList), nil
	case "nyc_close_open":
		return NewNYCCloseOpen(ex, riskName, riskList), nil
	default:
		return nil, fmt.Errorf("unknown strategy name: %s (available: %v)", name, AvailableStrategies())
	}
}

// AvailableStrategies returns a list of all available strategy names.
func AvailableStrategies() []string {
	return []string{
		"ma_crossover",
		"rsi_momentum",
		"bb_mean_reversion",
		"macd_trend_follower",
		"nyc_close_open",
	}
}
