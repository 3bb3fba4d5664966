package store

import (
	"encoding/json"
	"fmt"

	"github.com/northbeam/tickengine/models"
)

const signalNamespace = "signal_rows"

// SignalStore persists one Signal row per instance key, per spec.md's
// "one file per live or backtest signal slot per key" layout — expressed
// here as one kv_store row per key rather than one file, since both are
// "atomic, crash-surviving per-key storage".
type SignalStore struct {
	store Store
}

// NewSignalStore wraps store for signal-row use and runs its one-shot
// namespace initialization, dropping rows that fail to unmarshal.
func NewSignalStore(s Store) (*SignalStore, error) {
	if err := s.WaitForInit(signalNamespace, func(blob []byte) bool {
		var sig models.Signal
		return json.Unmarshal(blob, &sig) == nil
	}); err != nil {
		return nil, fmt.Errorf("signal store init: %w", err)
	}
	return &SignalStore{store: s}, nil
}

// Save persists the signal row under its instance key.
func (s *SignalStore) Save(key string, sig *models.Signal) error {
	blob, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("signal store marshal %s: %w", key, err)
	}
	return s.store.Write(signalNamespace, key, blob)
}

// Load retrieves the signal row for key, if any.
func (s *SignalStore) Load(key string) (*models.Signal, bool, error) {
	blob, err := s.store.Read(signalNamespace, key)
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var sig models.Signal
	if err := json.Unmarshal(blob, &sig); err != nil {
		return nil, false, fmt.Errorf("signal store unmarshal %s: %w", key, err)
	}
	return &sig, true, nil
}

// Clear removes the persisted row for key (the signal itself is retained
// only in report history, not in this slot store).
func (s *SignalStore) Clear(key string) error {
	return s.store.Delete(signalNamespace, key)
}
