package kv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oeee-cafe/oeee-client/internal/metrics"
)

// Database is the subset of *pgxpool.Pool used by PostgresStore, so pgxmock can stand in.
type Database interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore keeps one namespace in the kv_entries table (see migrations/).
type PostgresStore struct {
	db        Database
	namespace string
	metrics   *metrics.Metrics
}

// NewPostgresStore returns a store for namespace backed by db.
func NewPostgresStore(db Database, namespace string, m *metrics.Metrics) *PostgresStore {
	return &PostgresStore{db: db, namespace: namespace, metrics: m}
}

// NewDatabase creates a new PostgreSQL connection pool using the provided host, port, username, password, and database name.
func NewDatabase(host, port, username, password, dbName string) (*pgxpool.Pool, error) {
	var (
		ctxTimeout = 5 * time.Second
		idleTime   = 30 * time.Second
		hcPeriod   = 30 * time.Second
	)

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable",
		username,
		password,
		net.JoinHostPort(host, port),
		dbName,
	)

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MinConns = 1
	poolConfig.MaxConnIdleTime = idleTime
	poolConfig.HealthCheckPeriod = hcPeriod

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection to PostgreSQL: %w", err)
	}

	if err = dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL DB: %w", err)
	}

	return dbpool, nil
}

// Get returns the value stored under key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	defer observe(s.metrics, "postgres", "get")()
	query := `SELECT value FROM kv_entries WHERE namespace = $1 AND key = $2`

	var value string

	err := s.db.QueryRow(ctx, query, s.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get kv entry: %w", err)
	}

	return value, true, nil
}

// Put inserts or overwrites key.
func (s *PostgresStore) Put(ctx context.Context, key, value string) error {
	defer observe(s.metrics, "postgres", "put")()
	query := `
		INSERT INTO kv_entries (namespace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET value = $3, updated_at = CURRENT_TIMESTAMP;`

	if _, err := s.db.Exec(ctx, query, s.namespace, key, value); err != nil {
		return fmt.Errorf("failed to put kv entry: %w", err)
	}

	return nil
}

// Delete removes key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	defer observe(s.metrics, "postgres", "delete")()
	query := `DELETE FROM kv_entries WHERE namespace = $1 AND key = $2`

	if _, err := s.db.Exec(ctx, query, s.namespace, key); err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}

	return nil
}

// All returns every entry of the namespace.
func (s *PostgresStore) All(ctx context.Context) (map[string]string, error) {
	defer observe(s.metrics, "postgres", "all")()
	query := `SELECT key, value FROM kv_entries WHERE namespace = $1`

	rows, err := s.db.Query(ctx, query, s.namespace)
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

// ReplaceAll swaps the namespace contents inside one transaction.
func (s *PostgresStore) ReplaceAll(ctx context.Context, entries map[string]string) error {
	defer observe(s.metrics, "postgres", "replace_all")()

	keys, values := sortedEntries(entries)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `DELETE FROM kv_entries WHERE namespace = $1`, s.namespace); err != nil {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}

	if len(keys) > 0 {
		query := `
		INSERT INTO kv_entries (namespace, key, value)
		SELECT $1, t.key, t.value FROM unnest($2::text[], $3::text[]) AS t(key, value);`
		if _, err = tx.Exec(ctx, query, s.namespace, keys, values); err != nil {
			return fmt.Errorf("failed to insert kv entries: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Clear removes every entry of the namespace.
func (s *PostgresStore) Clear(ctx context.Context) error {
	defer observe(s.metrics, "postgres", "clear")()

	if _, err := s.db.Exec(ctx, `DELETE FROM kv_entries WHERE namespace = $1`, s.namespace); err != nil {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func sortedEntries(entries map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = entries[k]
	}

	return keys, values
}

func observe(m *metrics.Metrics, backend, op string) func() {
	startTime := time.Now()

	return func() {
		if m == nil {
			return
		}
		m.StorageQueryDuration.WithLabelValues(backend, op).Observe(time.Since(startTime).Seconds())
	}
}
