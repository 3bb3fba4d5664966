// Package backtesting replays a strategy over historical data and
// reports performance metrics. Run drives the same Tick Engine a live
// instance uses (package tick), so a backtested signal goes through
// exactly the scheduled/active/partial/trailing/breakeven state machine
// a live one would.
package backtesting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/instance"
	"github.com/northbeam/tickengine/models"
	"github.com/northbeam/tickengine/risk"
	"github.com/northbeam/tickengine/signalfsm"
	"github.com/northbeam/tickengine/store"
	"github.com/northbeam/tickengine/strategies"
	"github.com/northbeam/tickengine/tick"
)

// BacktestConfig holds configuration for a backtest run.
type BacktestConfig struct {
	// Symbol is the ticker symbol to backtest.
	Symbol string
	// StartDate is the start of the backtest period.
	StartDate time.Time
	// EndDate is the end of the backtest period.
	EndDate time.Time
	// InitialCapital is the starting capital.
	InitialCapital float64
	// PositionSize is the fixed notional committed per signal (0 = use
	// 95% of capital at the time the signal opens).
	PositionSize float64
	// Commission is the commission charged once per closed trade.
	Commission float64
}

// BacktestResult holds the results of a backtest run.
type BacktestResult struct {
	// ID is a unique identifier for this backtest.
	ID string
	// Config holds the backtest configuration.
	Config BacktestConfig
	// Strategy is the name of the strategy tested.
	Strategy string
	// Metrics holds performance metrics.
	Metrics *Metrics
	// Trades is the list of simulated trades.
	Trades []SimulatedTrade
	// EquityCurve tracks equity over time.
	EquityCurve []EquityPoint
	// StartedAt is when the backtest started.
	StartedAt time.Time
	// CompletedAt is when the backtest completed.
	CompletedAt time.Time
}

// SimulatedTrade represents one closed signal during backtesting.
type SimulatedTrade struct {
	EntryTime  time.Time        `json:"entry_time"`
	ExitTime   time.Time        `json:"exit_time"`
	Symbol     string           `json:"symbol"`
	Side       models.OrderSide `json:"side"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  float64          `json:"exit_price"`
	Quantity   float64          `json:"quantity"`
	PnL        float64          `json:"pnl"`
	PnLPercent float64          `json:"pnl_percent"`
}

// EquityPoint represents equity at a point in time.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Engine runs backtests for trading strategies.
type Engine struct {
	idCounter int
}

// NewEngine creates a new backtest engine.
func NewEngine() *Engine {
	return &Engine{idCounter: 0}
}

// Run replays strategy against data (oldest first) through a fresh,
// ephemeral Tick Engine instance: every candle is fed through
// tick.Engine.Backtest, and the resulting opened/closed events are
// translated into SimulatedTrades and an equity curve, so the reported
// metrics reflect exactly the same scheduled/partial/trailing/breakeven
// semantics a live run would apply.
func (e *Engine) Run(strategy strategies.Strategy, data []models.OHLCV, config BacktestConfig) (*BacktestResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no data provided for backtest")
	}

	e.idCounter++
	result := &BacktestResult{
		ID:          fmt.Sprintf("bt-%06d", e.idCounter),
		Config:      config,
		Strategy:    strategy.Name(),
		Trades:      []SimulatedTrade{},
		EquityCurve: []EquityPoint{},
		StartedAt:   time.Now(),
	}

	db, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("backtesting: open signal store: %w", err)
	}
	defer db.Close()

	signals, err := store.NewSignalStore(db)
	if err != nil {
		return nil, fmt.Errorf("backtesting: init signal store: %w", err)
	}

	ex := exchange.New(&replayProvider{name: "backtest", candles: data})
	replayBus := eventbus.New()
	engine := tick.New(ex, risk.New(), replayBus, signals, signalfsm.DefaultFees())

	rejected := 0
	replayBus.Subscribe(eventbus.TopicRiskReject, func(interface{}) { rejected++ })

	key := models.InstanceKey{Symbol: config.Symbol, StrategyName: strategy.Name(), ExchangeName: "backtest", Backtest: true}
	handle := instance.New().Get(key)

	log.Info().
		Str("strategy", strategy.Name()).
		Str("symbol", config.Symbol).
		Int("data_points", len(data)).
		Msg("Starting backtest")

	sim := newTradeSimulator(config)
	run := engine.Backtest(handle, strategy, config.Symbol, data)
	ctx := context.Background()
	for {
		event, ok, err := run.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("backtesting: %w", err)
		}
		if !ok {
			break
		}
		sim.apply(event)
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: event.When, Equity: sim.equity(event.CurrentPrice)})
		if trade, closed := sim.closedTrade(event); closed {
			result.Trades = append(result.Trades, trade)
		}
	}

	result.Metrics = CalculateMetrics(result.Trades, result.EquityCurve, config.InitialCapital)
	result.Metrics.RejectedSignals = rejected
	result.CompletedAt = time.Now()

	log.Info().
		Str("id", result.ID).
		Float64("total_return", result.Metrics.TotalReturn).
		Int("total_trades", result.Metrics.TotalTrades).
		Float64("win_rate", result.Metrics.WinRate).
		Int("rejected_signals", rejected).
		Msg("Backtest complete")

	return result, nil
}
