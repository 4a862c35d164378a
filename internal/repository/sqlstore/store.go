package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/asynccts/internal/domain"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var serviceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Store keeps active searches and results in SQLite. Results carry their own
// TTL which every read enforces; PurgeExpired reclaims the rows.
type Store struct {
	db       *sql.DB
	path     string
	active   string
	results  string
	counters string
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at, found_at and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides search and row id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Open opens (creating if needed) the database at path for one service
// instance. Tables are named <serviceID>_active_searches and <serviceID>_results.
// Call EnsureSchema before use.
func Open(path, serviceID string, ttl time.Duration, opts ...Option) (*Store, error) {
	if !serviceIDRegex.MatchString(serviceID) {
		return nil, fmt.Errorf("service id %q must match %s", serviceID, serviceIDRegex)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("result ttl must be positive")
	}

	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:       db,
		path:     path,
		active:   serviceID + "_active_searches",
		results:  serviceID + "_results",
		counters: serviceID + "_counters",
		ttl:      ttl,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// EnsureSchema creates tables and indexes if missing and drops expired
// results. It is safe to call on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			search_id      TEXT PRIMARY KEY,
			artifact_type  TEXT NOT NULL,
			artifact_value TEXT NOT NULL,
			created_at     INTEGER NOT NULL
		)`, s.active),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (artifact_type, artifact_value)`,
			s.active+"_artifact_idx", s.active),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			row_id         TEXT PRIMARY KEY,
			search_id      TEXT NOT NULL,
			artifact_type  TEXT NOT NULL,
			artifact_value TEXT NOT NULL,
			hit            TEXT NOT NULL,
			found_at       INTEGER NOT NULL,
			ttl_ms         INTEGER NOT NULL
		)`, s.results),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (artifact_type, artifact_value, found_at)`,
			s.results+"_artifact_idx", s.results),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (search_id, found_at)`,
			s.results+"_search_idx", s.results),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			name       TEXT PRIMARY KEY,
			value      INTEGER NOT NULL,
			expires_at INTEGER
		)`, s.counters),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeErr("ensure schema", err)
		}
	}
	if _, err := s.PurgeExpired(ctx); err != nil {
		return err
	}
	return nil
}

// PurgeExpired deletes results and counters past their TTL and returns how
// many results were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.counters), now,
	); err != nil {
		return 0, storeErr("purge expired", err)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE found_at + ttl_ms <= ?`, s.results), now,
	)
	if err != nil {
		return 0, storeErr("purge expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("purge expired", err)
	}
	return int(n), nil
}

// storeErr adds op context. Any failure of the embedded database means the
// store cannot serve, so every error maps to domain.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
