// Package strategies provides trading strategy implementations that emit
// models.SignalDTO values for the Tick Engine.
package strategies

import (
	"context"
	"fmt"

	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/models"
)

// Strategy is the contract the Tick Engine drives on every idle tick. It
// mirrors tick.Strategy; strategies package keeps its own copy so strategy
// code doesn't need to import the tick package.
type Strategy interface {
	// Name returns the strategy's unique identifier.
	Name() string

	// IntervalMinutes is the minimum number of simulated minutes between
	// consecutive GetSignal calls for one instance.
	IntervalMinutes() int

	// RiskName is the risk policy this strategy's signals are checked
	// against. Empty means the Risk Engine's default (accept-all) policy.
	RiskName() string

	// RiskList is an optional ordered set of additional risk policies
	// merged alongside RiskName.
	RiskList() []string

	// GetSignal inspects the current market (via the strategy's Exchange
	// Adapter) and returns a new signal to open, or nil for no signal.
	GetSignal(ctx context.Context, symbol string) (*models.SignalDTO, error)

	// Description returns a human-readable description, used by the API
	// layer's strategy listing.
	Description() string

	// GetParameters returns the strategy's configurable parameters.
	GetParameters() map[string]Parameter
}

// Parameter describes a configurable strategy parameter.
type Parameter struct {
	Type        string      `json:"type"`
	Default     interface{} `json:"default"`
	Min         interface{} `json:"min,omitempty"`
	Max         interface{} `json:"max,omitempty"`
	Description string      `json:"description"`
}

// BaseStrategy provides the plumbing every concrete strategy shares: a
// name/description pair, config storage, the risk policy it submits
// signals under, and the Exchange Adapter it reads candles from.
type BaseStrategy struct {
	name        string
	description string
	config      map[string]interface{}

	exchange *exchange.Adapter
	riskName string
	riskList []string
	interval int
}

// NewBaseStrategy creates a new BaseStrategy.
func NewBaseStrategy(name, description string, ex *exchange.Adapter, riskName string, riskList []string, intervalMinutes int) *BaseStrategy {
	return &BaseStrategy{
		name:        name,
		description: description,
		config:      make(map[string]interface{}),
		exchange:    ex,
		riskName:    riskName,
		riskList:    riskList,
		interval:    intervalMinutes,
	}
}

// Name returns the strategy name.
func (s *BaseStrategy) Name() string { return s.name }

// Description returns the strategy description.
func (s *BaseStrategy) Description() string { return s.description }

// IntervalMinutes returns the configured minimum spacing between signals.
func (s *BaseStrategy) IntervalMinutes() int { return s.interval }

// RiskName returns the risk policy this strategy submits signals under.
func (s *BaseStrategy) RiskName() string { return s.riskName }

// RiskList returns additional risk policies merged alongside RiskName.
func (s *BaseStrategy) RiskList() []string { return s.riskList }

// Exchange returns the Exchange Adapter this strategy reads candles from.
func (s *BaseStrategy) Exchange() *exchange.Adapter { return s.exchange }

// Init merges config into the strategy's stored configuration.
func (s *BaseStrategy) Init(config map[string]interface{}) error {
	for k, v := range config {
		s.config[k] = v
	}
	return nil
}

// GetConfig returns a config value with a default.
func (s *BaseStrategy) GetConfig(key string, defaultValue interface{}) interface{} {
	if val, exists := s.config[key]; exists {
		return val
	}
	return defaultValue
}

// GetConfigInt returns an integer config value.
func (s *BaseStrategy) GetConfigInt(key string, defaultValue int) int {
	val := s.GetConfig(key, defaultValue)
	switch v := val.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}

// GetConfigFloat returns a float config value.
func (s *BaseStrategy) GetConfigFloat(key string, defaultValue float64) float64 {
	val := s.GetConfig(key, defaultValue)
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return defaultValue
	}
}

// Registry manages available strategies.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates a new strategy registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy to the registry.
func (r *Registry) Register(strategy Strategy) error {
	name := strategy.Name()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("strategy already registered: %s", name)
	}
	r.strategies[name] = strategy
	return nil
}

// Get retrieves a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, exists := r.strategies[name]
	return s, exists
}

// List returns all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// All returns all registered strategies.
func (r *Registry) All() map[string]Strategy {
	return r.strategies
}
