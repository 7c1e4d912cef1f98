// Package pgstore is an optional Postgres-backed implementation of
// pkg/capability.KvStore, for host applications that want durable, shared
// storage instead of the default in-memory/file stores in internal/storekv.
//
// Adapted from the teacher's internal/storage/postgres.go: the same
// pgxpool connection-string construction and Config/DefaultConfig shape,
// re-targeted from DAG block storage onto a single flat key/value table.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDBConnection is returned when the pool cannot be created or pinged.
var ErrDBConnection = errors.New("pgstore: database connection error")

// Config holds Postgres connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns sensible local-development defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "shieldwallet",
		Password: "",
		Database: "shieldwallet",
		SSLMode:  "disable",
		MaxConns: 10,
	}
}

// Store implements capability.KvStore against a `kv_store(key text primary
// key, value bytea)` table.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and returns a ready Store. Callers are expected
// to have already created the kv_store table (schema migration is a host
// application concern, not part of the core).
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, cfg.MaxConns,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDBConnection, err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Get implements capability.KvStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("pgstore: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put implements capability.KvStore: an upsert that always overwrites the
// whole value, matching spec.md §5's "writes are overwrites of the whole
// blob" rule.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("pgstore: put %q: %w", key, err)
	}
	return nil
}
