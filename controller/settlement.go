package controller

import (
	"github.com/rs/zerolog/log"

	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/execution"
	"github.com/northbeam/tickengine/models"
	riskengine "github.com/northbeam/tickengine/risk"
)

// Settlement books a simulated fill for every signal a tick instance
// opens or closes, through the paper-trading stack. It is an
// audit/accounting layer distinct from risk.Engine: risk.Engine gates
// whether a signal may open at all; Settlement only records the capital
// effect of a signal the engine already decided to open and close,
// against execution.RiskManager's open-fill bookkeeping and feeding the
// same daily-loss tracker risk.Engine's "global" rule reads from.
type Settlement struct {
	orders    *execution.OrderManager
	broker    *execution.PaperBroker
	risk      *execution.RiskManager
	dailyLoss *riskengine.DailyLossTracker
	notional  float64
}

// NewSettlement wires a Settlement to orders/broker/risk built around
// the same PaperBroker instance; Subscribe attaches it to a bus.
// dailyLoss, if non-nil, receives every closed signal's realized P&L so
// the Risk Engine's daily-loss rule reflects Settlement's own bookkeeping
// rather than a second, separately-tracked total. notional is the fixed
// capital committed per signal, used to size the simulated quantity
// since signals themselves carry only prices and percentages, never a
// position size.
func NewSettlement(orders *execution.OrderManager, broker *execution.PaperBroker, risk *execution.RiskManager, dailyLoss *riskengine.DailyLossTracker, notional float64) *Settlement {
	return &Settlement{orders: orders, broker: broker, risk: risk, dailyLoss: dailyLoss, notional: notional}
}

// Subscribe wires the settlement layer to the tick-live and tick-backtest
// topics: opened events book an entry fill and closed events book the
// matching exit fill. Every other action, cancelled included, books
// nothing.
func (s *Settlement) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TopicTickLive, func(event interface{}) { s.handle(event) })
	bus.Subscribe(eventbus.TopicTickBacktest, func(event interface{}) { s.handle(event) })
}

func (s *Settlement) handle(event interface{}) {
	tick, ok := event.(models.TickEvent)
	if !ok || tick.Signal == nil {
		return
	}

	switch tick.Action {
	case models.ActionOpened:
		s.open(tick)
	case models.ActionClosed:
		s.close(tick)
	}
}

// instanceKey rebuilds the canonical key of the instance that produced
// tick, so the fill Settlement books on its behalf carries the same
// audit trail an HTTP-submitted order gets from api.AuditMiddleware.
func instanceKey(tick models.TickEvent) models.InstanceKey {
	frame := ""
	if tick.Signal != nil {
		frame = tick.Signal.FrameName
	}
	return models.InstanceKey{
		Symbol:       tick.Symbol,
		StrategyName: tick.StrategyName,
		ExchangeName: tick.ExchangeName,
		FrameName:    frame,
		Backtest:     tick.Backtest,
	}
}

func (s *Settlement) open(tick models.TickEvent) {
	sig := tick.Signal
	quantity := s.notional / sig.PriceOpen
	side := models.OrderSideBuy
	if sig.Position == models.SideShort {
		side = models.OrderSideSell
	}

	s.broker.SetPrice(tick.Symbol, sig.PriceOpen)
	ctx := execution.NewInstanceContext(instanceKey(tick))
	order, err := s.orders.CreateMarketOrder(ctx, tick.Symbol, side, quantity)
	if err != nil {
		log.Error().Err(err).Str("signal", sig.ID).Msg("settlement: entry fill rejected")
		return
	}
	if s.risk != nil {
		s.risk.IncrementOpenOrders()
	}
	log.Info().Str("signal", sig.ID).Str("order", order.ID).Msg("settlement: entry fill booked")
}

func (s *Settlement) close(tick models.TickEvent) {
	sig := tick.Signal
	quantity := s.notional / sig.PriceOpen
	side := models.OrderSideSell
	if sig.Position == models.SideShort {
		side = models.OrderSideBuy
	}

	s.broker.SetPrice(tick.Symbol, sig.ClosePrice)
	ctx := execution.NewInstanceContext(instanceKey(tick))
	order, err := s.orders.CreateMarketOrder(ctx, tick.Symbol, side, quantity)
	if err != nil {
		log.Error().Err(err).Str("signal", sig.ID).Msg("settlement: exit fill rejected")
		return
	}
	if s.risk != nil {
		s.risk.DecrementOpenOrders()
		if tick.PnL != nil {
			pnl := s.notional * tick.PnL.PnLPercentage / 100
			s.risk.UpdateDailyPnL(pnl)
			if s.dailyLoss != nil {
				s.dailyLoss.Record(pnl)
			}
		}
	}
	log.Info().Str("signal", sig.ID).Str("order", order.ID).Str("reason", string(tick.CloseReason)).Msg("settlement: exit fill booked")
}
