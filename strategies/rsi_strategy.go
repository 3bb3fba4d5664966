package strategies

import (
	"context"

	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/utils/indicators"
)

// RSIStrategy opens a long when RSI is oversold and a short when overbought.
type RSIStrategy struct {
	*BaseStrategy
	Period              int
	OverboughtThreshold float64
	OversoldThreshold   float64
	takeProfitPct       float64
	stopLossPct         float64
	minuteEstimatedTime int
}

// NewRSIStrategy creates a new RSI strategy.
func NewRSIStrategy(ex *exchange.Adapter, riskName string, riskList []string) *RSIStrategy {
	return &RSIStrategy{
		BaseStrategy: NewBaseStrategy(
			"rsi_momentum",
			"RSI Momentum - long when oversold, short when overbought",
			ex, riskName, riskList, 1,
		),
		Period:              14,
		OverboughtThreshold: 70.0,
		OversoldThreshold:   30.0,
		takeProfitPct:       0.02,
		stopLossPct:         0.01,
		minuteEstimatedTime: 240,
	}
}

// Init initializes the strategy with configuration.
func (s *RSIStrategy) Init(config map[string]interface{}) error {
	if err := s.BaseStrategy.Init(config); err != nil {
		return err
	}
	s.Period = s.GetConfigInt("period", s.Period)
	s.OverboughtThreshold = s.GetConfigFloat("overbought", s.OverboughtThreshold)
	s.OversoldThreshold = s.GetConfigFloat("oversold", s.OversoldThreshold)
	s.takeProfitPct = s.GetConfigFloat("take_profit_pct", s.takeProfitPct)
	s.stopLossPct = s.GetConfigFloat("stop_loss_pct", s.stopLossPct)
	s.minuteEstimatedTime = s.GetConfigInt("minute_estimated_time", s.minuteEstimatedTime)
	return nil
}

// GetParameters returns the strategy parameters.
func (s *RSIStrategy) GetParameters() map[string]Parameter {
	return map[string]Parameter{
		"period":     {Description: "RSI Period", Type: "int", Default: 14},
		"overbought": {Description: "Level above which asset is considered overbought", Type: "float", Default: 70.0},
		"oversold":   {Description: "Level below which asset is considered oversold", Type: "float", Default: 30.0},
	}
}

// GetSignal computes RSI over the last minute candles and opens a signal
// on an oversold/overbought read.
func (s *RSIStrategy) GetSignal(ctx context.Context, symbol string) (*models.SignalDTO, error) {
	need := s.Period + 1
	candles, err := s.Exchange().GetCandles(ctx, symbol, "1m", need)
	if err != nil {
		return nil, err
	}
	if len(candles) < need {
		return nil, nil
	}

	closes := closesOf(candles)
	rsiValues := indicators.RSI(closes, s.Period)
	currentRSI := rsiValues[len(rsiValues)-1]
	last := candles[len(candles)-1]

	switch {
	case currentRSI < s.OversoldThreshold:
		return longDTO(last.Close, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, "RSI oversold"), nil
	case currentRSI > s.OverboughtThreshold:
		return shortDTO(last.Close, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, "RSI overbought"), nil
	default:
		return nil, nil
	}
}
