package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/asynccts/internal/db"
)

// HSet sets hash fields.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := s.do(ctx, s.hset(key, fields)).Error(); err != nil {
		return wrap(db.OpHSet, err)
	}
	return nil
}

// HSetWithTTL sets hash fields and the key expiry in a single DoMulti round-trip.
func (s *Store) HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	results := s.client.DoMulti(ctx,
		s.hset(key, fields),
		s.b().Expire().Key(key).Seconds(ttlSeconds(ttl)).Build(),
	)
	ops := [...]string{db.OpHSet, db.OpExpire}
	for i, res := range results {
		if err := res.Error(); err != nil {
			return wrap(ops[i], fmt.Errorf("key %s: %w", key, err))
		}
	}
	return nil
}

func (s *Store) hset(key string, fields map[string]string) rueidis.Completed {
	cmd := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	return cmd.Build()
}

// HGetAll returns all fields of a hash. A missing key yields db.ErrKeyNotFound.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := s.b().Hgetall().Key(key).Build()
	m, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, wrap(db.OpHGetAll, err)
	}
	if len(m) == 0 {
		return nil, db.ErrKeyNotFound
	}
	return m, nil
}

// HGetAllMulti fetches all fields for multiple hashes in a single DoMulti round-trip.
// Missing keys yield nil entries at their position.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Hgetall().Key(key).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([]map[string]string, len(results))

	for i, res := range results {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, wrap(db.OpHGetAll, fmt.Errorf("key %s: %w", keys[i], err))
		}
		if len(m) > 0 {
			out[i] = m
		}
	}

	return out, nil
}
