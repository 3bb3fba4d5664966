package strategies

import (
	"context"

	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/models"
)

// MACrossover opens a long when the short moving average crosses above the
// long moving average, and a short on the reverse crossover.
type MACrossover struct {
	*BaseStrategy
	shortPeriod         int
	longPeriod          int
	takeProfitPct       float64
	stopLossPct         float64
	minuteEstimatedTime int
}

// NewMACrossover creates a new Moving Average Crossover strategy.
func NewMACrossover(ex *exchange.Adapter, riskName string, riskList []string) *MACrossover {
	return &MACrossover{
		BaseStrategy: NewBaseStrategy(
			"ma_crossover",
			"Moving Average Crossover - opens on short/long MA crossovers",
			ex, riskName, riskList, 1,
		),
		shortPeriod:         10,
		longPeriod:          20,
		takeProfitPct:       0.02,
		stopLossPct:         0.01,
		minuteEstimatedTime: 240,
	}
}

// Init initializes the MA crossover strategy with configuration.
func (s *MACrossover) Init(config map[string]interface{}) error {
	if err := s.BaseStrategy.Init(config); err != nil {
		return err
	}
	s.shortPeriod = s.GetConfigInt("short_period", s.shortPeriod)
	s.longPeriod = s.GetConfigInt("long_period", s.longPeriod)
	s.takeProfitPct = s.GetConfigFloat("take_profit_pct", s.takeProfitPct)
	s.stopLossPct = s.GetConfigFloat("stop_loss_pct", s.stopLossPct)
	s.minuteEstimatedTime = s.GetConfigInt("minute_estimated_time", s.minuteEstimatedTime)
	return nil
}

// GetParameters returns the strategy's parameter definitions.
func (s *MACrossover) GetParameters() map[string]Parameter {
	return map[string]Parameter{
		"short_period": {Type: "int", Default: 10, Min: 2, Max: 50, Description: "Short moving average period"},
		"long_period":  {Type: "int", Default: 20, Min: 5, Max: 200, Description: "Long moving average period"},
	}
}

// GetSignal detects an MA crossover over the last minute candles and
// returns a signal sized by configured take-profit/stop-loss percentages.
func (s *MACrossover) GetSignal(ctx context.Context, symbol string) (*models.SignalDTO, error) {
	need := s.longPeriod + 1
	candles, err := s.Exchange().GetCandles(ctx, symbol, "1m", need)
	if err != nil {
		return nil, err
	}
	if len(candles) < need {
		return nil, nil
	}

	closes := closesOf(candles)
	currentShort := sma(closes, s.shortPeriod, 0)
	currentLong := sma(closes, s.longPeriod, 0)
	prevShort := sma(closes, s.shortPeriod, 1)
	prevLong := sma(closes, s.longPeriod, 1)

	last := candles[len(candles)-1]

	switch {
	case prevShort <= prevLong && currentShort > currentLong:
		return longDTO(last.Close, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, "bullish MA crossover"), nil
	case prevShort >= prevLong && currentShort < currentLong:
		return shortDTO(last.Close, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, "bearish MA crossover"), nil
	default:
		return nil, nil
	}
}

func sma(closes []float64, period, offset int) float64 {
	end := len(closes) - offset
	start := end - period
	if start < 0 {
		return 0
	}
	var sum float64
	for i := start; i < end; i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

func closesOf(candles []models.OHLCV) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func longDTO(price, tpPct, slPct float64, minutes int, note string) *models.SignalDTO {
	return &models.SignalDTO{
		Position:            models.SideLong,
		PriceTakeProfit:     price * (1 + tpPct),
		PriceStopLoss:       price * (1 - slPct),
		MinuteEstimatedTime: minutes,
		Note:                note,
	}
}

func shortDTO(price, tpPct, slPct float64, minutes int, note string) *models.SignalDTO {
	return &models.SignalDTO{
		Position:            models.SideShort,
		PriceTakeProfit:     price * (1 - tpPct),
		PriceStopLoss:       price * (1 + slPct),
		MinuteEstimatedTime: minutes,
		Note:                note,
	}
}
