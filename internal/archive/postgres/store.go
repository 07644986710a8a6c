// Package postgres stores normalized records in Postgres for deployments
// that share one archive across hosts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/neows-archiver/internal/clock/system"
	"github.com/JakeFAU/neows-archiver/internal/metrics"
	"github.com/JakeFAU/neows-archiver/internal/neo"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store needs.
type Pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements neo.Archive on Postgres.
type Store struct {
	pool  Pool
	table string
	clock neo.Clock
}

// Open connects to Postgres and ensures the archive table exists.
func Open(ctx context.Context, cfg Config, clock neo.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("archive.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool; tests pass a pgxmock pool.
func NewWithPool(pool Pool, table string, clock neo.Clock) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "asteroids"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if clock == nil {
		clock = system.New()
	}
	return &Store{pool: pool, table: table, clock: clock}, nil
}

// EnsureSchema creates the archive table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	inserted_at TEXT NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Insert stores rec unless a row with its id already exists.
func (s *Store) Insert(ctx context.Context, rec neo.NormalizedRecord) (bool, error) {
	if rec.ID == "" {
		return false, nil
	}
	payload, err := neo.EncodeRecord(rec)
	if err != nil {
		return false, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	insertedAt := s.clock.Now().UTC().Format(time.RFC3339Nano)

	query := fmt.Sprintf(`
INSERT INTO %s (id, data, inserted_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, rec.ID, string(payload), insertedAt)
	if err != nil {
		metrics.ObserveInsert(metrics.InsertError)
		return false, fmt.Errorf("%w: insert %s: %v", neo.ErrPersistence, rec.ID, err)
	}
	if tag.RowsAffected() == 1 {
		metrics.ObserveInsert(metrics.InsertNew)
		return true, nil
	}
	metrics.ObserveInsert(metrics.InsertDuplicate)
	return false, nil
}

// Get returns the archived row for id or neo.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (neo.ArchivedRow, error) {
	query := fmt.Sprintf(`SELECT id, data, inserted_at FROM %s WHERE id = $1`, s.table)
	var (
		row        neo.ArchivedRow
		data       string
		insertedAt string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&row.ID, &data, &insertedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return neo.ArchivedRow{}, fmt.Errorf("%w: %s", neo.ErrNotFound, id)
	}
	if err != nil {
		return neo.ArchivedRow{}, fmt.Errorf("%w: get %s: %v", neo.ErrPersistence, id, err)
	}
	row.Payload = []byte(data)
	if ts, parseErr := time.Parse(time.RFC3339Nano, insertedAt); parseErr == nil {
		row.InsertedAt = ts
	}
	return row, nil
}

// Count returns the number of archived rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", neo.ErrPersistence, err)
	}
	return n, nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", neo.ErrPersistence, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
