package models

import "time"

// Side is the direction of a signal/position.
type Side string

const (
	// SideLong is a long position.
	SideLong Side = "long"
	// SideShort is a short position.
	SideShort Side = "short"
)

// SignalState is the current lifecycle state of a Signal.
type SignalState string

const (
	StateIdle      SignalState = "idle"
	StateScheduled SignalState = "scheduled"
	StateOpened    SignalState = "opened"
	StateActive    SignalState = "active"
	StateClosed    SignalState = "closed"
	StateCancelled SignalState = "cancelled"
)

// CloseReason describes why an active signal was closed.
type CloseReason string

const (
	CloseReasonTakeProfit  CloseReason = "take_profit"
	CloseReasonStopLoss    CloseReason = "stop_loss"
	CloseReasonTimeExpired CloseReason = "time_expired"
	CloseReasonUser        CloseReason = "user"
)

// CancelReason describes why a scheduled signal was cancelled.
type CancelReason string

const (
	CancelReasonTimeout      CancelReason = "timeout"
	CancelReasonPriceReject  CancelReason = "price_reject"
	CancelReasonUser         CancelReason = "user"
)

// PartialKind distinguishes a partial take-profit from a partial stop-loss.
type PartialKind string

const (
	PartialProfit PartialKind = "profit"
	PartialLoss   PartialKind = "loss"
)

// PartialEntry is one append-only record in a Signal's partial close history.
type PartialEntry struct {
	Type    PartialKind `json:"type"`
	Percent float64     `json:"percent"`
	Price   float64     `json:"price"`
}

// SignalDTO is what a user-supplied strategy's GetSignal returns.
// Presence of PriceOpen selects scheduled mode; its absence means the
// position opens immediately at the current price.
type SignalDTO struct {
	Position            Side    `json:"position"`
	PriceOpen           float64 `json:"priceOpen,omitempty"`
	PriceTakeProfit     float64 `json:"priceTakeProfit"`
	PriceStopLoss       float64 `json:"priceStopLoss"`
	MinuteEstimatedTime int     `json:"minuteEstimatedTime"`
	Note                string  `json:"note,omitempty"`
	Timestamp           int64   `json:"timestamp,omitempty"`
}

// Signal is the central bookkeeping entity tracked by the signal state
// machine: a simulated position whose exit is decided by price crossing
// a level, never by a broker fill.
type Signal struct {
	ID string `json:"id"`

	// Immutable context.
	Symbol       string `json:"symbol"`
	StrategyName string `json:"strategyName"`
	ExchangeName string `json:"exchangeName"`
	FrameName    string `json:"frameName"`
	Backtest     bool   `json:"backtest"`

	Position Side `json:"position"`

	PriceOpen       float64 `json:"priceOpen"`
	PriceTakeProfit float64 `json:"priceTakeProfit"`
	PriceStopLoss   float64 `json:"priceStopLoss"`

	OriginalPriceTakeProfit float64 `json:"originalPriceTakeProfit"`
	OriginalPriceStopLoss   float64 `json:"originalPriceStopLoss"`

	// Trailing overrides. Nil means "not set"; when set they replace the
	// base prices for TP/SL checks.
	TrailingPriceStopLoss   *float64 `json:"trailingPriceStopLoss,omitempty"`
	TrailingPriceTakeProfit *float64 `json:"trailingPriceTakeProfit,omitempty"`

	ScheduledAt int64 `json:"scheduledAt"`
	PendingAt   int64 `json:"pendingAt"`
	CloseTime   int64 `json:"closeTime,omitempty"`

	MinuteEstimatedTime int `json:"minuteEstimatedTime"`

	IsScheduled bool `json:"isScheduled"`

	State SignalState `json:"state"`

	PartialHistory []PartialEntry `json:"partialHistory"`

	// Derived but persisted.
	TPClosed    float64 `json:"tpClosed"`
	SLClosed    float64 `json:"slClosed"`
	TotalClosed float64 `json:"totalClosed"`

	CloseReason  CloseReason  `json:"closeReason,omitempty"`
	CancelReason CancelReason `json:"cancelReason,omitempty"`
	CancelID     string       `json:"cancelId,omitempty"`

	ClosePrice float64 `json:"closePrice,omitempty"`

	Note string `json:"note,omitempty"`
}

// EffectiveStopLoss returns the trailing SL override if set, otherwise
// the base SL.
func (s *Signal) EffectiveStopLoss() float64 {
	if s.TrailingPriceStopLoss != nil {
		return *s.TrailingPriceStopLoss
	}
	return s.PriceStopLoss
}

// EffectiveTakeProfit returns the trailing TP override if set, otherwise
// the base TP.
func (s *Signal) EffectiveTakeProfit() float64 {
	if s.TrailingPriceTakeProfit != nil {
		return *s.TrailingPriceTakeProfit
	}
	return s.PriceTakeProfit
}

// PnL holds the realized profit/loss summary for a closed signal.
type PnL struct {
	PnLPercentage float64 `json:"pnlPercentage"`
	PriceOpen     float64 `json:"priceOpen"`
	PriceClose    float64 `json:"priceClose"`
}

// InstanceKey identifies one (symbol, strategy, exchange, frame, mode)
// tick engine instance. Frame is empty for live instances.
type InstanceKey struct {
	Symbol       string
	StrategyName string
	ExchangeName string
	FrameName    string
	Backtest     bool
}

// String renders the canonical "symbol:strategy:exchange[:frame]:(backtest|live)" form.
func (k InstanceKey) String() string {
	mode := "live"
	if k.Backtest {
		mode = "backtest"
	}
	if k.FrameName == "" {
		return k.Symbol + ":" + k.StrategyName + ":" + k.ExchangeName + ":" + mode
	}
	return k.Symbol + ":" + k.StrategyName + ":" + k.ExchangeName + ":" + k.FrameName + ":" + mode
}

// TickResultAction is the discriminant of a TickResult/event envelope.
type TickResultAction string

const (
	ActionIdle      TickResultAction = "idle"
	ActionScheduled TickResultAction = "scheduled"
	ActionOpened    TickResultAction = "opened"
	ActionActive    TickResultAction = "active"
	ActionClosed    TickResultAction = "closed"
	ActionCancelled TickResultAction = "cancelled"
)

// TickEvent is the wire shape published on the tick-* topics.
type TickEvent struct {
	Action       TickResultAction `json:"action"`
	Signal       *Signal          `json:"signal"`
	CurrentPrice float64          `json:"currentPrice"`
	StrategyName string           `json:"strategyName"`
	ExchangeName string           `json:"exchangeName"`
	Symbol       string           `json:"symbol"`
	Backtest     bool             `json:"backtest"`

	CloseReason   CloseReason `json:"closeReason,omitempty"`
	CloseTimestamp int64      `json:"closeTimestamp,omitempty"`
	PnL           *PnL        `json:"pnl,omitempty"`

	CancelReason CancelReason `json:"cancelReason,omitempty"`
	CancelID     string       `json:"cancelId,omitempty"`

	When time.Time `json:"when"`
}

// PartialEvent is the wire shape published on partial-profit/partial-loss/breakeven.
type PartialEvent struct {
	Timestamp               int64          `json:"timestamp"`
	Action                  string         `json:"action"` // "profit" | "loss" | "breakeven"
	SignalID                string         `json:"signalId"`
	Position                Side           `json:"position"`
	CurrentPrice            float64        `json:"currentPrice"`
	Level                   int            `json:"level"`
	PriceOpen               float64        `json:"priceOpen"`
	PriceTakeProfit         float64        `json:"priceTakeProfit"`
	PriceStopLoss           float64        `json:"priceStopLoss"`
	OriginalPriceTakeProfit float64        `json:"originalPriceTakeProfit"`
	OriginalPriceStopLoss   float64        `json:"originalPriceStopLoss"`
	TotalExecuted           float64        `json:"totalExecuted"`
	PartialHistory          []PartialEntry `json:"partialHistory"`
	Note                    string         `json:"note,omitempty"`
	PendingAt               int64          `json:"pendingAt"`
	ScheduledAt             int64          `json:"scheduledAt"`
	MinuteEstimatedTime     int            `json:"minuteEstimatedTime"`
}

// RiskRejectEvent is the wire shape published on risk-reject.
type RiskRejectEvent struct {
	Timestamp           int64      `json:"timestamp"`
	CurrentPrice        float64    `json:"currentPrice"`
	ActivePositionCount int        `json:"activePositionCount"`
	RejectionID         string     `json:"rejectionId"`
	RejectionNote       string     `json:"rejectionNote"`
	PendingSignal       *SignalDTO `json:"pendingSignal"`
}
