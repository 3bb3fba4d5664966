package strategies

import (
	"context"
	"math"

	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/utils/indicators"
)

// MACDStrategy is a trend-following strategy driven by MACD/signal-line
// crossovers.
type MACDStrategy struct {
	*BaseStrategy
	FastPeriod          int
	SlowPeriod          int
	SignalPeriod        int
	takeProfitPct       float64
	stopLossPct         float64
	minuteEstimatedTime int
}

// NewMACDStrategy creates a new MACD strategy.
func NewMACDStrategy(ex *exchange.Adapter, riskName string, riskList []string) *MACDStrategy {
	return &MACDStrategy{
		BaseStrategy: NewBaseStrategy(
			"macd_trend_follower",
			"MACD Trend Follower - long on bullish crossover, short on bearish crossover",
			ex, riskName, riskList, 1,
		),
		FastPeriod:          12,
		SlowPeriod:          26,
		SignalPeriod:        9,
		takeProfitPct:       0.03,
		stopLossPct:         0.015,
		minuteEstimatedTime: 360,
	}
}

// Init initializes the strategy with configuration.
func (s *MACDStrategy) Init(config map[string]interface{}) error {
	if err := s.BaseStrategy.Init(config); err != nil {
		return err
	}
	s.FastPeriod = s.GetConfigInt("fastPeriod", s.FastPeriod)
	s.SlowPeriod = s.GetConfigInt("slowPeriod", s.SlowPeriod)
	s.SignalPeriod = s.GetConfigInt("signalPeriod", s.SignalPeriod)
	s.takeProfitPct = s.GetConfigFloat("take_profit_pct", s.takeProfitPct)
	s.stopLossPct = s.GetConfigFloat("stop_loss_pct", s.stopLossPct)
	s.minuteEstimatedTime = s.GetConfigInt("minute_estimated_time", s.minuteEstimatedTime)
	return nil
}

// GetParameters returns the strategy parameters.
func (s *MACDStrategy) GetParameters() map[string]Parameter {
	return map[string]Parameter{
		"fastPeriod":   {Description: "Fast EMA Period", Type: "int", Default: 12},
		"slowPeriod":   {Description: "Slow EMA Period", Type: "int", Default: 26},
		"signalPeriod": {Description: "Signal Line Period", Type: "int", Default: 9},
	}
}

// GetSignal opens on a MACD/signal-line crossover.
func (s *MACDStrategy) GetSignal(ctx context.Context, symbol string) (*models.SignalDTO, error) {
	minData := s.SlowPeriod + s.SignalPeriod + 1
	candles, err := s.Exchange().GetCandles(ctx, symbol, "1m", minData)
	if err != nil {
		return nil, err
	}
	if len(candles) < minData {
		return nil, nil
	}

	closes := closesOf(candles)
	macdLine, signalLine, _ := indicators.MACD(closes, s.FastPeriod, s.SlowPeriod, s.SignalPeriod)

	lastIdx := len(candles) - 1
	prevIdx := lastIdx - 1

	currentMACD, currentSignal := macdLine[lastIdx], signalLine[lastIdx]
	prevMACD, prevSignal := macdLine[prevIdx], signalLine[prevIdx]
	if math.IsNaN(currentMACD) || math.IsNaN(currentSignal) || math.IsNaN(prevMACD) || math.IsNaN(prevSignal) {
		return nil, nil
	}

	last := candles[lastIdx]
	switch {
	case prevMACD <= prevSignal && currentMACD > currentSignal:
		return longDTO(last.Close, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, "bullish MACD crossover"), nil
	case prevMACD >= prevSignal && currentMACD < currentSignal:
		return shortDTO(last.Close, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, "bearish MACD crossover"), nil
	default:
		return nil, nil
	}
}
