// Package sqlite stores normalized records in a local SQLite file.
//
// Writes go through a single connection with WAL and synchronous=FULL, so an
// insert is durable once Insert returns and the file can be reopened by a
// later run to resume a crawl.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/neows-archiver/internal/clock/system"
	"github.com/JakeFAU/neows-archiver/internal/metrics"
	"github.com/JakeFAU/neows-archiver/internal/neo"
)

const defaultTable = "asteroids"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls where the archive lives.
type Config struct {
	// Path is the database file; its directory is created if missing.
	Path  string
	Table string
	// BusyTimeout bounds how long a writer waits on a locked file.
	BusyTimeout time.Duration
}

// Store implements neo.Archive on SQLite.
type Store struct {
	db    *sql.DB
	table string
	clock neo.Clock
}

// Open opens or creates the archive at cfg.Path.
func Open(ctx context.Context, cfg Config, clock neo.Clock) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("archive.path is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 30 * time.Second
	}
	if clock == nil {
		clock = system.New()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(cfg.Path, busy))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// One writer; every pragma above is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, table: table, clock: clock}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// dsn builds a SQLite URI for path. The path is percent-escaped so that
// '?', '#' and '%' in file names survive URI parsing.
func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(FULL)")
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: q.Encode(),
	}
	return u.String()
}

func (s *Store) createTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	inserted_at TEXT NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
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

	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (id, data, inserted_at) VALUES (?, ?, ?)`, s.table)
	res, err := s.db.ExecContext(ctx, query, rec.ID, string(payload), insertedAt)
	if err != nil {
		metrics.ObserveInsert(metrics.InsertError)
		return false, fmt.Errorf("%w: insert %s: %v", neo.ErrPersistence, rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		metrics.ObserveInsert(metrics.InsertError)
		return false, fmt.Errorf("%w: rows affected: %v", neo.ErrPersistence, err)
	}
	if n == 1 {
		metrics.ObserveInsert(metrics.InsertNew)
		return true, nil
	}
	metrics.ObserveInsert(metrics.InsertDuplicate)
	return false, nil
}

// Get returns the archived row for id or neo.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (neo.ArchivedRow, error) {
	query := fmt.Sprintf(`SELECT id, data, inserted_at FROM %s WHERE id = ?`, s.table)
	var (
		row        neo.ArchivedRow
		data       string
		insertedAt string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&row.ID, &data, &insertedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", neo.ErrPersistence, err)
	}
	return n, nil
}

// Ping checks that the file is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", neo.ErrPersistence, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
