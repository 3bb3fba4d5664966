// Package store provides the atomic key→blob persistence layer signal
// instances and the candle cache use to survive a crash between ticks.
//
// It is backed by sqlx + modernc.org/sqlite (pure Go, no cgo), the same
// pairing the rest of this codebase uses for the orders/positions
// database. A single shared table is keyed by (namespace, key); an
// upsert (INSERT ... ON CONFLICT DO UPDATE) inside a transaction is the
// atomicity primitive —
// the SQL equivalent of the temp-file-then-rename approach.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store is the atomic key→blob persistence contract (spec.md §4.2).
type Store interface {
	// WaitForInit performs the one-shot per-namespace initialization:
	// create the backing table if needed, scan existing entries, and
	// drop any that fail structural validation.
	WaitForInit(namespace string, validate func(blob []byte) bool) error

	// Read returns the blob for key, or ErrNotFound.
	Read(namespace, key string) ([]byte, error)

	// Has reports whether key exists in namespace.
	Has(namespace, key string) (bool, error)

	// Write atomically persists blob under key. A subsequent Read
	// returns the new blob (write-then-ack ordering).
	Write(namespace, key string, blob []byte) error

	// Delete removes key from namespace. Deleting a missing key is a no-op.
	Delete(namespace, key string) error

	// Keys lists every key currently stored under namespace.
	Keys(namespace string) ([]string, error)
}

// SQLStore is the sqlx/sqlite-backed Store implementation.
type SQLStore struct {
	db *sqlx.DB

	mu   sync.Mutex
	once map[string]*initState
}

type initState struct {
	once sync.Once
	err  error
}

// Open creates (or opens) the sqlite database at path and prepares the
// kv_store table. The directory is created if missing.
func Open(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kv_store (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		blob       BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, key)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("persistence store opened")

	return &SQLStore{db: db, once: make(map[string]*initState)}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// WaitForInit runs validate once per namespace and drops any entry that
// fails it. Subsequent calls for the same namespace are no-ops returning
// the first call's result (init failure is fatal for the namespace).
func (s *SQLStore) WaitForInit(namespace string, validate func(blob []byte) bool) error {
	s.mu.Lock()
	st, ok := s.once[namespace]
	if !ok {
		st = &initState{}
		s.once[namespace] = st
	}
	s.mu.Unlock()

	st.once.Do(func() {
		st.err = s.scanAndPrune(namespace, validate)
	})
	return st.err
}

func (s *SQLStore) scanAndPrune(namespace string, validate func(blob []byte) bool) error {
	type row struct {
		Key  string `db:"key"`
		Blob []byte `db:"blob"`
	}
	var rows []row
	err := s.db.Select(&rows, `SELECT key, blob FROM kv_store WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("store: init scan %s: %w", namespace, err)
	}

	if validate == nil {
		return nil
	}

	dropped := 0
	for _, r := range rows {
		if !validate(r.Blob) {
			if _, err := s.db.Exec(`DELETE FROM kv_store WHERE namespace = ? AND key = ?`, namespace, r.Key); err != nil {
				return fmt.Errorf("store: prune %s/%s: %w", namespace, r.Key, err)
			}
			dropped++
		}
	}
	if dropped > 0 {
		log.Warn().Str("namespace", namespace).Int("dropped", dropped).Msg("pruned structurally invalid entries during init")
	}
	return nil
}

// Read returns the blob for key, or ErrNotFound.
func (s *SQLStore) Read(namespace, key string) ([]byte, error) {
	var blob []byte
	err := s.db.Get(&blob, `SELECT blob FROM kv_store WHERE namespace = ? AND key = ?`, namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s/%s: %w", namespace, key, err)
	}
	return blob, nil
}

// Has reports whether key exists in namespace.
func (s *SQLStore) Has(namespace, key string) (bool, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(1) FROM kv_store WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return false, fmt.Errorf("store: has %s/%s: %w", namespace, key, err)
	}
	return count > 0, nil
}

// Write atomically persists blob under key inside a transaction.
func (s *SQLStore) Write(namespace, key string, blob []byte) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("store: begin write %s/%s: %w", namespace, key, err)
	}

	_, err = tx.Exec(`
		INSERT INTO kv_store (namespace, key, blob, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(namespace, key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
	`, namespace, key, blob)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("store: write %s/%s: %w", namespace, key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit write %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes key from namespace.
func (s *SQLStore) Delete(namespace, key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_store WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Keys lists every key currently stored under namespace.
func (s *SQLStore) Keys(namespace string) ([]string, error) {
	var keys []string
	err := s.db.Select(&keys, `SELECT key FROM kv_store WHERE namespace = ? ORDER BY key`, namespace)
	if err != nil {
		return nil, fmt.Errorf("store: keys %s: %w", namespace, err)
	}
	return keys, nil
}
