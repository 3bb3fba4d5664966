package controller

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/models"
)

// Report is a simple performance summary over one instance's recorded
// closed signals, computed from events seen since the Controller started.
type Report struct {
	Key           string  `json:"key"`
	ClosedCount   int     `json:"closedCount"`
	CancelledCount int    `json:"cancelledCount"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"winRate"`
	TotalPnLPct   float64 `json:"totalPnLPercent"`
}

// recorder buffers every event published on the bus, grouped by the
// instance key it names, for later reporting and JSONL dump.
type recorder struct {
	mu       sync.Mutex
	dumpRoot string
	byKey    map[string][]taggedEvent
}

type taggedEvent struct {
	topic eventbus.Topic
	value interface{}
}

func newRecorder(dumpRoot string) *recorder {
	return &recorder{dumpRoot: dumpRoot, byKey: make(map[string][]taggedEvent)}
}

func (r *recorder) subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.TopicAny, func(event interface{}) {
		r.record(eventbus.TopicAny, event)
	})
}

// keyOf extracts the instance key a recordable event belongs to.
// Partial/breakeven/risk-reject events don't carry enough context
// (symbol, strategy, exchange) to attribute to one instance key, so
// only tick events are recorded for reporting purposes.
func keyOf(event interface{}) (string, bool) {
	tick, ok := event.(models.TickEvent)
	if !ok {
		return "", false
	}
	key := models.InstanceKey{
		Symbol:       tick.Symbol,
		StrategyName: tick.StrategyName,
		ExchangeName: tick.ExchangeName,
		Backtest:     tick.Backtest,
	}
	return key.String(), true
}

func (r *recorder) record(topic eventbus.Topic, event interface{}) {
	k, ok := keyOf(event)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[k] = append(r.byKey[k], taggedEvent{topic: topic, value: event})
}

func (r *recorder) report(key string) Report {
	r.mu.Lock()
	events := append([]taggedEvent(nil), r.byKey[key]...)
	r.mu.Unlock()

	out := Report{Key: key}
	for _, te := range events {
		tick, ok := te.value.(models.TickEvent)
		if !ok {
			continue
		}
		switch tick.Action {
		case models.ActionCancelled:
			out.CancelledCount++
		case models.ActionClosed:
			out.ClosedCount++
			if tick.PnL != nil {
				out.TotalPnLPct += tick.PnL.PnLPercentage
				if tick.PnL.PnLPercentage > 0 {
					out.Wins++
				} else {
					out.Losses++
				}
			}
		}
	}
	if out.ClosedCount > 0 {
		out.WinRate = float64(out.Wins) / float64(out.ClosedCount)
	}
	return out
}

// dump writes key's recorded events to {dumpRoot}/report/{key}.jsonl,
// one JSON object per line in publication order, per spec.md §6's
// persisted layout.
func (r *recorder) dump(key string) error {
	r.mu.Lock()
	events := append([]taggedEvent(nil), r.byKey[key]...)
	r.mu.Unlock()

	dir := filepath.Join(r.dumpRoot, "report")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("controller: dump: mkdir: %w", err)
	}

	safeName := filepath.Base(key) + ".jsonl"
	path := filepath.Join(dir, safeName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("controller: dump: open: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, te := range events {
		if err := enc.Encode(te.value); err != nil {
			return fmt.Errorf("controller: dump: encode: %w", err)
		}
	}
	return w.Flush()
}
