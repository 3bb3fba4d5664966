package strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/models"
)

// NYCCloseOpen buys at NYC market close and sells before the next open.
// Intended for assets that trade around the clock (crypto); on an equity
// exchange closed at these hours the signal would never fill.
type NYCCloseOpen struct {
	*BaseStrategy
	location            *time.Location
	takeProfitPct       float64
	stopLossPct         float64
	minuteEstimatedTime int
}

// NewNYCCloseOpen creates a new NYC Close/Open strategy.
func NewNYCCloseOpen(ex *exchange.Adapter, riskName string, riskList []string) *NYCCloseOpen {
	return &NYCCloseOpen{
		BaseStrategy: NewBaseStrategy(
			"nyc_close_open",
			"NYC Close/Open - buy at 16:00 ET, sell at 08:30 ET",
			ex, riskName, riskList, 1,
		),
		takeProfitPct:       0.01,
		stopLossPct:         0.02,
		minuteEstimatedTime: 990, // 16:00 ET to 08:30 ET next day
	}
}

// Init initializes the strategy.
func (s *NYCCloseOpen) Init(config map[string]interface{}) error {
	if err := s.BaseStrategy.Init(config); err != nil {
		return err
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return fmt.Errorf("load NYC timezone: %w", err)
	}
	s.location = loc
	s.takeProfitPct = s.GetConfigFloat("take_profit_pct", s.takeProfitPct)
	s.stopLossPct = s.GetConfigFloat("stop_loss_pct", s.stopLossPct)
	return nil
}

// GetParameters returns the strategy's parameter definitions.
func (s *NYCCloseOpen) GetParameters() map[string]Parameter {
	return map[string]Parameter{
		"buy_hour":    {Type: "int", Default: 16, Min: 0, Max: 23, Description: "Hour to buy (ET)"},
		"buy_minute":  {Type: "int", Default: 0, Min: 0, Max: 59, Description: "Minute to buy (ET)"},
		"sell_hour":   {Type: "int", Default: 8, Min: 0, Max: 23, Description: "Hour to sell (ET)"},
		"sell_minute": {Type: "int", Default: 30, Min: 0, Max: 59, Description: "Minute to sell (ET)"},
	}
}

// GetSignal opens a long at market close and a short an hour and a half
// before the next open; signals only on exact-minute matches.
func (s *NYCCloseOpen) GetSignal(ctx context.Context, symbol string) (*models.SignalDTO, error) {
	candles, err := s.Exchange().GetCandles(ctx, symbol, "1m", 1)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, nil
	}

	if s.location == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			return nil, fmt.Errorf("load NYC timezone: %w", err)
		}
		s.location = loc
	}

	candle := candles[len(candles)-1]
	candleTimeNYC := candle.Timestamp.In(s.location)
	hour, minute := candleTimeNYC.Hour(), candleTimeNYC.Minute()

	if candleTimeNYC.Weekday() == time.Saturday || candleTimeNYC.Weekday() == time.Sunday {
		return nil, nil
	}

	buyHour := s.GetConfigInt("buy_hour", 16)
	buyMinute := s.GetConfigInt("buy_minute", 0)
	sellHour := s.GetConfigInt("sell_hour", 8)
	sellMinute := s.GetConfigInt("sell_minute", 30)

	switch {
	case hour == buyHour && minute == buyMinute:
		note := fmt.Sprintf("market close (%02d:%02d ET) on %s", buyHour, buyMinute, candleTimeNYC.Weekday())
		return longDTO(candle.Close, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, note), nil
	case hour == sellHour && minute == sellMinute:
		note := fmt.Sprintf("pre-market (%02d:%02d ET) on %s", sellHour, sellMinute, candleTimeNYC.Weekday())
		return shortDTO(candle.Close, s.takeProfitPct, s.stopLossPct, s.minuteEstimatedTime, note), nil
	default:
		return nil, nil
	}
}
