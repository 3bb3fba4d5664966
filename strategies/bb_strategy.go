package strategies

import (
	"context"
	"math"

	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/utils/indicators"
)

// BollingerBandsStrategy is a mean-reversion strategy: long at the lower
// band, short at the upper band.
type BollingerBandsStrategy struct {
	*BaseStrategy
	Period              int
	StdDevMultiplier    float64
	takeProfitPct       float64
	stopLossPct         float64
	minuteEstimatedTime int
}

// NewBollingerBandsStrategy creates a new Bollinger Bands strategy.
func NewBollingerBandsStrategy(ex *exchange.Adapter, riskName string, riskList []string) *BollingerBandsStrategy {
	return &BollingerBandsStrategy{
		BaseStrategy: NewBaseStrategy(
			"bb_mean_reversion",
			"Bollinger Bands Mean Reversion - long at lower band, short at upper band",
			ex, riskName, riskList, 1,
		),
		Period:              20,
		StdDevMultiplier:    2.0,
		takeProfitPct:       0.015,
		stopLossPct:         0.01,
		minuteEstimatedTime: 180,
	}
}

// Init initializes the strategy with configuration.
func (s *BollingerBandsStrategy) Init(config map[string]interface{}) error {
	if err := s.BaseStrategy.Init(config); err != nil {
		return err
	}
	s.Period = s.GetConfigInt("period", s.Period)
	s.StdDevMultiplier = s.GetConfigFloat("stdDevMultiplier", s.StdDevMultiplier)
	s.takeProfitPct = s.GetConfigFloat("take_profit_pct", s.takeProfitPct)
	s.stopLossPct = s.GetConfigFloat("stop_loss_pct", s.stopLossPct)
	s.minuteEstimatedTime = s.GetConfigInt("minute_estimated_time", s.minuteEstimatedTime)
	return nil
}

// GetParameters returns the strategy parameters.
func (s *BollingerBandsStrategy) GetParameters() map[string]Parameter {
	return map[string]Parameter{
		"period":           {Description: "Moving Average Period", Type: "int", Default: 20},
		"stdDevMultiplier": {Description: "Standard Deviation Multiplier", Type: "float", Default: 2.0},
	}
}

// GetSignal opens a long when price touches the lower band and a short
// when it touches the upper band.
func (s *BollingerBandsStrategy) GetSignal(ctx context.Context, symbol string) (*models.SignalDTO, error) {
	candles, err := s.Exchange().GetCandles(ctx, symbol, "1m", s.Period)
	if err != nil {
		return nil, err
	}
	if len(candles) < s.Period {
		return nil, nil
	}

	closes := closesOf(candles)
	upper, _, lower := indicators.BollingerBands(closes, s.Period, s.StdDevMultiplier)

	lastIdx := len(candles) - 1
	currentPrice := closes[lastIdx]
	currentUpper := upper[lastIdx]
	currentLower := lower[lastIdx]
	if math.IsNaN(currentUpper) || math.IsNaN(currentLower) {
		return nil, nil
	}

	switch {
	case currentPrice <= currentLower:
		return longDTO(currentPrice, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, "price at lower band"), nil
	case currentPrice >= currentUpper:
		return shortDTO(currentPrice, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, "price at upper band"), nil
	default:
		return nil, nil
	}
}
