package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/execution"
	"github.com/northbeam/tickengine/models"
	riskengine "github.com/northbeam/tickengine/risk"
)

func newTestSettlement(t *testing.T) (*Settlement, *execution.PaperBroker, *execution.OrderManager) {
	t.Helper()
	broker := execution.NewPaperBroker(100000)
	require.NoError(t, broker.Connect())
	risk := execution.NewRiskManager(nil, broker)
	orders := execution.NewOrderManager(broker, risk, nil, nil)
	dailyLoss := riskengine.NewDailyLossTracker(500)
	return NewSettlement(orders, broker, risk, dailyLoss, 1000), broker, orders
}

func TestSettlement_OpenedBooksEntryFill(t *testing.T) {
	settlement, broker, _ := newTestSettlement(t)
	bus := eventbus.New()
	settlement.Subscribe(bus)

	bus.Publish(eventbus.TopicTickLive, models.TickEvent{
		Action: models.ActionOpened,
		Symbol: "BTCUSDT",
		Signal: &models.Signal{ID: "s1", Position: models.SideLong, PriceOpen: 50000},
	})

	pos, err := broker.GetPosition("BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.02, pos.Quantity, 1e-9)
}

func TestSettlement_ClosedBooksExitFillAndPnL(t *testing.T) {
	settlement, broker, _ := newTestSettlement(t)
	bus := eventbus.New()
	settlement.Subscribe(bus)

	bus.Publish(eventbus.TopicTickLive, models.TickEvent{
		Action: models.ActionOpened,
		Symbol: "BTCUSDT",
		Signal: &models.Signal{ID: "s1", Position: models.SideLong, PriceOpen: 50000},
	})
	bus.Publish(eventbus.TopicTickLive, models.TickEvent{
		Action:     models.ActionClosed,
		Symbol:     "BTCUSDT",
		CloseReason: models.CloseReasonTakeProfit,
		Signal:     &models.Signal{ID: "s1", Position: models.SideLong, PriceOpen: 50000, ClosePrice: 51000},
		PnL:        &models.PnL{PnLPercentage: 2, PriceOpen: 50000, PriceClose: 51000},
	})

	_, err := broker.GetPosition("BTCUSDT")
	assert.Error(t, err, "position should be fully closed out")

	balance, err := broker.GetBalance()
	require.NoError(t, err)
	assert.Greater(t, balance.Cash, 100000.0)
}

func TestSettlement_IgnoresNonTickEvents(t *testing.T) {
	settlement, _, _ := newTestSettlement(t)
	bus := eventbus.New()
	settlement.Subscribe(bus)

	assert.NotPanics(t, func() {
		bus.Publish(eventbus.TopicTickLive, models.PartialEvent{SignalID: "s1"})
	})
}
