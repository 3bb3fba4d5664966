// Package risk is the Risk Engine (spec.md §4.5): portfolio-level policy
// that gates pending signals before they're allowed to schedule or open.
// It owns an active-position ledger per (riskName, exchange, frame, mode)
// so that instances never hold a back-pointer into risk state — only a
// name.
//
// The rule representation follows execution.RiskManager's check-and-reject
// shape in spirit, generalized from a single fixed policy into a
// composable tree of named rules, the way strategies/strategy.go
// generalizes a single strategy into a registry.
package risk

import (
	"fmt"
	"sync"

	"github.com/northbeam/tickengine/models"
)

// Reject describes why a rule refused a pending signal.
type Reject struct {
	RejectionID   string
	RejectionNote string
}

func (r Reject) Error() string {
	return fmt.Sprintf("risk reject %s: %s", r.RejectionID, r.RejectionNote)
}

// Context is what a rule receives to make its decision.
type Context struct {
	PendingSignal      *models.Signal
	ActivePositionCount int
	ActivePositions     []*models.Signal
}

// RuleFunc is a leaf rule: it accepts silently (nil) or fails with a Reject.
type RuleFunc func(Context) error

// Rule is a tagged value: either a Leaf(fn) or a Merge([rules]), per
// spec.md's resolution of dynamic rule composition into a tree walk
// instead of inheritance.
type Rule struct {
	leaf  RuleFunc
	merge []Rule
}

// Leaf wraps a single rule function.
func Leaf(fn RuleFunc) Rule {
	return Rule{leaf: fn}
}

// Merge composes rules so that the merged rule accepts iff every member
// accepts. MergeRisk in spec.md terms.
func Merge(rules ...Rule) Rule {
	return Rule{merge: rules}
}

func (r Rule) evaluate(ctx Context) error {
	if r.merge != nil {
		for _, sub := range r.merge {
			if err := sub.evaluate(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	if r.leaf != nil {
		return r.leaf(ctx)
	}
	return nil
}

// allowAll is the default rule: no riskName/riskList means an always-accept
// no-op.
var allowAll = Leaf(func(Context) error { return nil })

// ledgerKey identifies one active-position ledger.
type ledgerKey struct {
	riskName string
	exchange string
	frame    string
	backtest bool
}

// Engine is the Risk Engine: a named-rule registry plus one
// active-position ledger per (riskName, exchange, frame, mode).
type Engine struct {
	mu       sync.Mutex
	rules    map[string]Rule
	ledgers  map[ledgerKey]map[string]*models.Signal // keyed by signal ID within the ledger
}

// New constructs an empty Engine.
func New() *Engine {
	return &Engine{
		rules:   make(map[string]Rule),
		ledgers: make(map[ledgerKey]map[string]*models.Signal),
	}
}

// Register names a rule so strategy schemas can reference it by riskName.
func (e *Engine) Register(riskName string, rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[riskName] = rule
}

func (e *Engine) resolve(riskName string, riskList []string) Rule {
	var members []Rule
	if riskName != "" {
		if r, ok := e.rules[riskName]; ok {
			members = append(members, r)
		}
	}
	for _, name := range riskList {
		if r, ok := e.rules[name]; ok {
			members = append(members, r)
		}
	}
	if len(members) == 0 {
		return allowAll
	}
	if len(members) == 1 {
		return members[0]
	}
	return Merge(members...)
}

func key(riskName, exchange, frame string, backtest bool) ledgerKey {
	return ledgerKey{riskName: riskName, exchange: exchange, frame: frame, backtest: backtest}
}

// CheckSignal evaluates the effective rule (riskName first, then riskList,
// merged in schema order) against the current ledger for
// (riskName, exchange, frame, mode) and, on acceptance, inserts the
// pending signal into that ledger as one atomic critical section — the
// check and the insert share the engine's lock so no other tick can
// observe a stale active-position count in between.
func (e *Engine) CheckSignal(riskName string, riskList []string, exchange, frame string, backtest bool, pending *models.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule := e.resolve(riskName, riskList)
	k := key(riskName, exchange, frame, backtest)
	ledger := e.ledgers[k]

	active := make([]*models.Signal, 0, len(ledger))
	for _, s := range ledger {
		active = append(active, s)
	}

	ctx := Context{
		PendingSignal:       pending,
		ActivePositionCount: len(active),
		ActivePositions:     active,
	}

	if err := rule.evaluate(ctx); err != nil {
		return err
	}

	if ledger == nil {
		ledger = make(map[string]*models.Signal)
		e.ledgers[k] = ledger
	}
	ledger[pending.ID] = pending
	return nil
}

// AddSignal inserts signal into its ledger outside of CheckSignal's
// acceptance path, used when a scheduled signal transitions opened→active
// without a fresh checkSignal call.
func (e *Engine) AddSignal(riskName, exchange, frame string, backtest bool, signal *models.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := key(riskName, exchange, frame, backtest)
	if e.ledgers[k] == nil {
		e.ledgers[k] = make(map[string]*models.Signal)
	}
	e.ledgers[k][signal.ID] = signal
}

// RemoveSignal evicts signal from its ledger on close or pre-activation
// cancellation.
func (e *Engine) RemoveSignal(riskName, exchange, frame string, backtest bool, signal *models.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := key(riskName, exchange, frame, backtest)
	delete(e.ledgers[k], signal.ID)
}

// ActiveCount reports the current ledger size for (riskName, exchange,
// frame, mode), mainly for tests and reporting.
func (e *Engine) ActiveCount(riskName, exchange, frame string, backtest bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ledgers[key(riskName, exchange, frame, backtest)])
}
