package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/asynccts/internal/db"
)

// Counters mirror the Redis GET / INCRBY / EXPIRE NX trio so the budget
// store runs unchanged on either backend.

// Get returns the decimal value of a live counter, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %q WHERE name = ? AND (expires_at IS NULL OR expires_at > ?)`, s.counters),
		key, s.now().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, storeErr("get counter", err)
	}
	return []byte(strconv.FormatInt(value, 10)), nil
}

// IncrBy adds val to the counter. An expired counter starts over without expiry.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %q (name, value, expires_at) VALUES (?, ?, NULL)
		ON CONFLICT (name) DO UPDATE SET
			value = CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN excluded.value
			             ELSE value + excluded.value END,
			expires_at = CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN NULL
			                  ELSE expires_at END`, s.counters),
		key, val, now, now,
	)
	if err != nil {
		return storeErr("incr counter", err)
	}
	return nil
}

// Expire sets the counter's expiry. With nx it only applies to counters without one.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	query := fmt.Sprintf(`UPDATE %q SET expires_at = ? WHERE name = ?`, s.counters)
	if nx {
		query += ` AND expires_at IS NULL`
	}
	if _, err := s.db.ExecContext(ctx, query, s.now().Add(ttl).UnixMilli(), key); err != nil {
		return storeErr("expire counter", err)
	}
	return nil
}
