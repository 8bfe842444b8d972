// Package kvstore implements the persistent key-value collaborator on a
// single SQLite database in WAL mode. The ledger persists its whole state
// as one value under one key, so a Set here is the atomic unit of
// durability for the entire core.
package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tornsidekick/sidekick/internal/domain"
)

// Store manages the SQLite-backed key-value table.
type Store struct {
	db *sql.DB
}

// Compile-time check that *Store satisfies the collaborator interface.
var _ domain.KVStore = (*Store)(nil)

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	return err
}

// Get returns the stored value for key, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return json.RawMessage(value), nil
}

// Set writes value under key, replacing any previous value. Transient
// SQLite contention errors are retried with backoff.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value      = excluded.value,
				updated_at = excluded.updated_at`,
			key, string(value), now)
		return err
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}
