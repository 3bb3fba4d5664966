// Package instance is the Instance Registry (spec.md §4.8): a memoized,
// race-safe map from canonical instance key to a *Handle carrying the
// mutual-exclusion primitive and the tick-loop bookkeeping state a
// single (symbol, strategy, exchange, frame, mode) tick engine instance
// owns between ticks.
//
// Get holds a single mutex across both the lookup and the insertion,
// the same concurrent-map-of-lazily-built-values pattern this
// codebase otherwise expresses with a plain mutex-guarded map (see
// execution.OrderManager's order table).
package instance

import (
	"sync"

	"github.com/northbeam/tickengine/models"
)

// Handle is the per-instance state the Tick Engine mutates across ticks.
// The zero value is ready to use.
type Handle struct {
	Key models.InstanceKey

	mu sync.Mutex

	// Current is the signal occupying this instance's single slot, or
	// nil if idle.
	Current *models.Signal

	// RiskName/RiskList are the strategy's risk wiring, captured at
	// signal creation so the Tick Engine can address the right Risk
	// Engine ledger later in the signal's life without holding a
	// reference to the strategy itself.
	RiskName string
	RiskList []string

	// PendingCancelID is set by a user-initiated cancel and consumed by
	// the next tick against a scheduled signal.
	PendingCancelID string

	// LastSignalAt is the "when" (ms) of the last successful getSignal
	// call, used for interval throttling.
	LastSignalAt int64

	// Stopped prevents new getSignal calls once set; it does not abort
	// an in-flight tick or force-close an active signal.
	Stopped bool

	// LastPingMinute tracks the last simulated minute a ping event was
	// emitted for a waiting scheduled signal, so backtest emits at most
	// one ping per simulated minute.
	LastPingMinute int64

	// Loaded is set once the Controller has attempted to rehydrate this
	// Handle's Current signal from the Persistence Store. A freshly
	// constructed Handle (first Get after process start, or after a
	// prior Clear) has Loaded false even though Current is nil, so the
	// rehydration only ever runs once per Handle — a Handle that is
	// genuinely idle after rehydration stays idle.
	Loaded bool
}

// Lock acquires the instance's mutual-exclusion primitive for the
// duration of one tick or one user command. No two ticks for the same
// key may interleave.
func (h *Handle) Lock() { h.mu.Lock() }

// Unlock releases the primitive acquired by Lock.
func (h *Handle) Unlock() { h.mu.Unlock() }

// Status summarizes a Handle for the Controller's list operation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
	StatusReady     Status = "ready"
)

// Registry memoizes Handle construction by canonical key.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Handle
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{instances: make(map[string]*Handle)}
}

// Get returns the Handle for key, constructing it on first access.
// Dropping an instance with Clear does not remove its persisted state;
// a later Get returns a fresh, unloaded Handle that the caller (the
// Controller, via its Persistence Store) is responsible for rehydrating
// before the instance's first tick or command.
func (r *Registry) Get(key models.InstanceKey) *Handle {
	k := key.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.instances[k]
	if ok {
		return h
	}
	h = &Handle{Key: key}
	r.instances[k] = h
	return h
}

// Clear removes one key's instance. Use ClearAll to drop every instance.
func (r *Registry) Clear(key models.InstanceKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, key.String())
}

// ClearAll removes every instance from the registry.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]*Handle)
}

// List returns every known key paired with its current status.
func (r *Registry) List() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Status, len(r.instances))
	for k, h := range r.instances {
		out[k] = statusOf(h)
	}
	return out
}

func statusOf(h *Handle) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return lockedStatusOf(h)
}

// Snapshot returns h's current status and signal under a single lock
// acquisition, for callers (like the Controller) that have not already
// locked h themselves.
func Snapshot(h *Handle) (Status, *models.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return lockedStatusOf(h), h.Current
}

func lockedStatusOf(h *Handle) Status {
	switch {
	case h.Stopped:
		return StatusRejected
	case h.Current == nil:
		return StatusReady
	case h.Current.State == models.StateScheduled:
		return StatusPending
	default:
		return StatusFulfilled
	}
}
