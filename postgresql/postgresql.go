// Package postgresql provides a PostgreSQL implementation of
// outputcache.Store built on github.com/jackc/pgx/v5.
//
// Entries live in a single table with a tags array column; tag eviction is a
// single DELETE with an ANY(tags) predicate and expiry is enforced in the
// read query.
package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNilPool is returned when a nil pool is provided.
var ErrNilPool = errors.New("postgresql: pool cannot be nil")

// DefaultTableName is the default table name for cache storage.
const DefaultTableName = "outputcache"

// Config holds the configuration for the PostgreSQL store.
type Config struct {
	// TableName is the name of the table to store cache entries
	// (default: "outputcache").
	TableName string
	// Timeout is the maximum time to wait for database operations
	// (default: 5s).
	Timeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		TableName: DefaultTableName,
		Timeout:   5 * time.Second,
	}
}

// Store is an implementation of outputcache.Store that stores entries in
// PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	tableName string
	timeout   time.Duration
}

// New creates a Store using the given connection pool and ensures the
// backing table exists.
func New(ctx context.Context, pool *pgxpool.Pool, config *Config) (*Store, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	if config == nil {
		config = DefaultConfig()
	}
	s := &Store{
		pool:      pool,
		tableName: config.TableName,
		timeout:   config.Timeout,
	}
	if s.tableName == "" {
		s.tableName = DefaultTableName
	}
	if s.timeout == 0 {
		s.timeout = DefaultConfig().Timeout
	}
	if err := s.createTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			expires_at TIMESTAMPTZ
		)`, pgx.Identifier{s.tableName}.Sanitize())
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("postgresql create table failed: %w", err)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (tags)`,
		pgx.Identifier{s.tableName + "_tags_idx"}.Sanitize(),
		pgx.Identifier{s.tableName}.Sanitize())
	if _, err := s.pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("postgresql create tags index failed: %w", err)
	}
	return nil
}

// Get returns the blob stored under key if present and not expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT data FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		pgx.Identifier{s.tableName}.Sanitize())

	var data []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgresql get failed for key %q: %w", key, err)
	}
	return data, true, nil
}

// Set stores the blob with the given tags and ttl, replacing any previous
// entry for the key.
func (s *Store) Set(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}
	if tags == nil {
		tags = []string{}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (key, data, tags, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET data = $2, tags = $3, expires_at = $4`,
		pgx.Identifier{s.tableName}.Sanitize())
	if _, err := s.pool.Exec(ctx, query, key, value, tags, expires); err != nil {
		return fmt.Errorf("postgresql set failed for key %q: %w", key, err)
	}
	return nil
}

// EvictByTag removes every entry stored with the given tag.
func (s *Store) EvictByTag(ctx context.Context, tag string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE $1 = ANY(tags)`,
		pgx.Identifier{s.tableName}.Sanitize())
	if _, err := s.pool.Exec(ctx, query, tag); err != nil {
		return fmt.Errorf("postgresql tag eviction failed for tag %q: %w", tag, err)
	}
	return nil
}

// Cleanup removes expired rows. Expiry is otherwise only enforced at read
// time; call this periodically to bound table growth.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= now()`,
		pgx.Identifier{s.tableName}.Sanitize())
	res, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("postgresql cleanup failed: %w", err)
	}
	return res.RowsAffected(), nil
}
