package execution

import (
	"testing"

	"github.com/northbeam/tickengine/models"
	"github.com/stretchr/testify/assert"
)

// TestDefaultRiskConfig verifies default configuration values.
func TestDefaultRiskConfig(t *testing.T) {
	cfg := DefaultRiskConfig()

	assert.Equal(t, 500.0, cfg.MaxDailyLoss)
	assert.Equal(t, 10, cfg.MaxOpenOrders)
}

// TestNewRiskManager verifies risk manager creation.
func TestNewRiskManager(t *testing.T) {
	broker := NewPaperBroker(10000)
	rm := NewRiskManager(nil, broker)

	assert.NotNil(t, rm)
	assert.NotNil(t, rm.config) // Should use defaults
	assert.Equal(t, 500.0, rm.config.MaxDailyLoss)
}

// TestNewRiskManager_WithConfig verifies custom config.
func TestNewRiskManager_WithConfig(t *testing.T) {
	broker := NewPaperBroker(10000)
	cfg := &RiskConfig{
		MaxDailyLoss:  250,
		MaxOpenOrders: 5,
	}

	rm := NewRiskManager(cfg, broker)

	assert.Equal(t, 250.0, rm.config.MaxDailyLoss)
	assert.Equal(t, 5, rm.config.MaxOpenOrders)
}

// TestRiskManager_CheckOrder_Pass verifies an order passes when neither
// limit has been breached.
func TestRiskManager_CheckOrder_Pass(t *testing.T) {
	broker := NewPaperBroker(10000)
	_ = broker.Connect()
	rm := NewRiskManager(nil, broker)

	order := models.Order{
		Symbol:   "AAPL",
		Quantity: 10,
		Price:    100.0,
		Type:     models.OrderTypeLimit,
	}

	err := rm.CheckOrder(order)
	assert.NoError(t, err)
}

// TestRiskManager_CheckOrder_DailyLossExceeded verifies daily loss limit.
func TestRiskManager_CheckOrder_DailyLossExceeded(t *testing.T) {
	broker := NewPaperBroker(10000)
	_ = broker.Connect()
	rm := NewRiskManager(nil, broker)

	// Simulate exceeding daily loss
	rm.UpdateDailyPnL(-600) // Exceeds $500 limit

	order := models.Order{
		Symbol:   "AAPL",
		Quantity: 10,
		Price:    100.0,
		Type:     models.OrderTypeLimit,
	}

	err := rm.CheckOrder(order)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "daily loss limit exceeded")
}

// TestRiskManager_CheckOrder_MaxOpenOrders verifies open orders limit.
func TestRiskManager_CheckOrder_MaxOpenOrders(t *testing.T) {
	broker := NewPaperBroker(10000)
	_ = broker.Connect()
	cfg := &RiskConfig{
		MaxOpenOrders: 2,
		MaxDailyLoss:  1000,
	}
	rm := NewRiskManager(cfg, broker)

	// Simulate max open orders
	rm.IncrementOpenOrders()
	rm.IncrementOpenOrders()

	order := models.Order{
		Symbol:   "AAPL",
		Quantity: 10,
		Price:    100.0,
		Type:     models.OrderTypeLimit,
	}

	err := rm.CheckOrder(order)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max open orders reached")
}

// TestRiskManager_DailyPnL_Tracking verifies PnL tracking.
func TestRiskManager_DailyPnL_Tracking(t *testing.T) {
	broker := NewPaperBroker(10000)
	rm := NewRiskManager(nil, broker)

	assert.Equal(t, 0.0, rm.GetDailyPnL())

	rm.UpdateDailyPnL(100)
	assert.Equal(t, 100.0, rm.GetDailyPnL())

	rm.UpdateDailyPnL(-50)
	assert.Equal(t, 50.0, rm.GetDailyPnL())

	rm.ResetDaily()
	assert.Equal(t, 0.0, rm.GetDailyPnL())
}

// TestRiskManager_OpenOrders_Tracking verifies the open-order counter
// responds to increment/decrement/reset.
func TestRiskManager_OpenOrders_Tracking(t *testing.T) {
	broker := NewPaperBroker(10000)
	cfg := &RiskConfig{MaxOpenOrders: 1, MaxDailyLoss: 1000}
	rm := NewRiskManager(cfg, broker)

	rm.IncrementOpenOrders()

	order := models.Order{Symbol: "AAPL", Quantity: 10, Price: 100.0, Type: models.OrderTypeLimit}
	assert.Error(t, rm.CheckOrder(order))

	rm.DecrementOpenOrders()
	assert.NoError(t, rm.CheckOrder(order))

	rm.IncrementOpenOrders()
	rm.ResetDaily()
	assert.NoError(t, rm.CheckOrder(order))
}

// TestRiskManager_GetConfig verifies config access.
func TestRiskManager_GetConfig(t *testing.T) {
	broker := NewPaperBroker(10000)
	cfg := &RiskConfig{MaxDailyLoss: 250}
	rm := NewRiskManager(cfg, broker)

	assert.Equal(t, cfg, rm.GetConfig())
	assert.Equal(t, 250.0, rm.GetConfig().MaxDailyLoss)
}
