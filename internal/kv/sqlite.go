package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/oeee-cafe/oeee-client/internal/metrics"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (namespace, key)
);`

// OpenSQLite opens (creating if needed) the on-device database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer keeps SQLITE_BUSY away from concurrent cookie writes
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv schema: %w", err)
	}

	return db, nil
}

// SQLiteStore keeps one namespace in a local SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
	metrics   *metrics.Metrics
}

// NewSQLiteStore returns a store for namespace backed by db (see OpenSQLite).
func NewSQLiteStore(db *sql.DB, namespace string, m *metrics.Metrics) *SQLiteStore {
	return &SQLiteStore{db: db, namespace: namespace, metrics: m}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	defer observe(s.metrics, "sqlite", "get")()

	var value string

	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get kv entry: %w", err)
	}

	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	defer observe(s.metrics, "sqlite", "put")()
	query := `
		INSERT INTO kv_entries (namespace, key, value) VALUES (?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP;`

	if _, err := s.db.ExecContext(ctx, query, s.namespace, key, value); err != nil {
		return fmt.Errorf("failed to put kv entry: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	defer observe(s.metrics, "sqlite", "delete")()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}

	return nil
}

func (s *SQLiteStore) All(ctx context.Context) (map[string]string, error) {
	defer observe(s.metrics, "sqlite", "all")()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv_entries WHERE namespace = ?`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query kv entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err = rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan kv entry: %w", err)
		}
		entries[key] = value
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kv entries: %w", err)
	}

	return entries, nil
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, entries map[string]string) error {
	defer observe(s.metrics, "sqlite", "replace_all")()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}

	keys, values := sortedEntries(entries)
	for i, key := range keys {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO kv_entries (namespace, key, value) VALUES (?, ?, ?)`, s.namespace, key, values[i]); err != nil {
			return fmt.Errorf("failed to insert kv entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	defer observe(s.metrics, "sqlite", "clear")()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}

	return nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
