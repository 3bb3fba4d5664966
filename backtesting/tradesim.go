package backtesting

import (
	"fmt"
	"time"

	"github.com/northbeam/tickengine/models"
)

// tradeSimulator turns a sequence of TickEvents into cash/equity
// bookkeeping and SimulatedTrades. Signals carry only prices and
// percentage P&L, never a position size, so it sizes each trade by a
// notional computed from config.PositionSize (or 95% of cash at the
// time the signal opens) the same way the teacher's original inline
// buy/sell loop did.
type tradeSimulator struct {
	config BacktestConfig
	cash   float64

	open       bool
	entryTime  time.Time
	entryPrice float64
	notional   float64
	quantity   float64
	side       models.Side
}

func newTradeSimulator(config BacktestConfig) *tradeSimulator {
	return &tradeSimulator{config: config, cash: config.InitialCapital}
}

func (s *tradeSimulator) apply(event models.TickEvent) {
	switch event.Action {
	case models.ActionOpened:
		s.openPosition(event)
	case models.ActionClosed:
		s.closePosition(event)
	case models.ActionCancelled:
		s.open = false
	}
}

func (s *tradeSimulator) openPosition(event models.TickEvent) {
	sig := event.Signal
	if sig == nil || sig.PriceOpen == 0 {
		return
	}
	notional := s.config.PositionSize
	if notional == 0 {
		notional = s.cash * 0.95
	}
	s.open = true
	s.entryTime = event.When
	s.entryPrice = sig.PriceOpen
	s.notional = notional
	s.quantity = notional / sig.PriceOpen
	s.side = sig.Position
}

// closedTrade reports the SimulatedTrade produced by a closed event, if
// any (it also updates cash as a side effect of apply having already
// run against the same event).
func (s *tradeSimulator) closedTrade(event models.TickEvent) (SimulatedTrade, bool) {
	if event.Action != models.ActionClosed || event.Signal == nil || event.PnL == nil {
		return SimulatedTrade{}, false
	}
	pnlPercent := event.PnL.PnLPercentage
	net := s.notional*pnlPercent/100 - s.config.Commission

	side := models.OrderSideBuy
	if s.side == models.SideShort {
		side = models.OrderSideSell
	}

	return SimulatedTrade{
		EntryTime:  s.entryTime,
		ExitTime:   event.When,
		Symbol:     event.Symbol,
		Side:       side,
		EntryPrice: s.entryPrice,
		ExitPrice:  event.Signal.ClosePrice,
		Quantity:   s.quantity,
		PnL:        net,
		PnLPercent: pnlPercent,
	}, true
}

func (s *tradeSimulator) closePosition(event models.TickEvent) {
	if event.PnL == nil {
		s.open = false
		return
	}
	net := s.notional*event.PnL.PnLPercentage/100 - s.config.Commission
	s.cash += net
	s.open = false
}

// equity reports cash plus the unrealized P&L of an open position at
// currentPrice.
func (s *tradeSimulator) equity(currentPrice float64) float64 {
	if !s.open || s.entryPrice == 0 {
		return s.cash
	}
	direction := 1.0
	if s.side == models.SideShort {
		direction = -1.0
	}
	unrealizedPct := direction * (currentPrice - s.entryPrice) / s.entryPrice * 100
	return s.cash + s.notional*unrealizedPct/100
}

// replayProvider is a data.DataProvider that serves a fixed candle
// slice, letting backtesting.Engine drive the Tick Engine without a
// live exchange connection.
type replayProvider struct {
	name    string
	candles []models.OHLCV
}

func (p *replayProvider) Name() string { return p.name }

func (p *replayProvider) GetHistoricalData(symbol string, start, end time.Time, interval string) ([]models.OHLCV, error) {
	out := make([]models.OHLCV, 0, len(p.candles))
	for _, c := range p.candles {
		if !c.Timestamp.Before(start) && !c.Timestamp.After(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *replayProvider) GetLatestPrice(symbol string) (float64, error) {
	if len(p.candles) == 0 {
		return 0, fmt.Errorf("replayProvider: no candles")
	}
	return p.candles[len(p.candles)-1].Close, nil
}

func (p *replayProvider) GetTicker(symbol string) (*models.Ticker, error) {
	return &models.Ticker{Symbol: symbol}, nil
}
