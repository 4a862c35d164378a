package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/asynccts/internal/db"
)

// ZAddWithTTL adds member to a sorted set and resets the key expiry in one DoMulti round-trip.
func (s *Store) ZAddWithTTL(ctx context.Context, key string, score float64, member string, ttl time.Duration) error {
	results := s.client.DoMulti(ctx,
		s.b().Zadd().Key(key).ScoreMember().ScoreMember(score, member).Build(),
		s.b().Expire().Key(key).Seconds(ttlSeconds(ttl)).Build(),
	)
	ops := [...]string{db.OpZAdd, db.OpExpire}
	for i, res := range results {
		if err := res.Error(); err != nil {
			return wrap(ops[i], fmt.Errorf("key %s: %w", key, err))
		}
	}
	return nil
}

// ZRevMembers returns every member, highest score first.
func (s *Store) ZRevMembers(ctx context.Context, key string) ([]string, error) {
	cmd := s.b().Zrevrange().Key(key).Start(0).Stop(-1).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, wrap(db.OpZRange, err)
	}
	return members, nil
}

// ZRem removes members from a sorted set.
func (s *Store) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	cmd := s.b().Zrem().Key(key).Member(members...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return wrap(db.OpZRem, err)
	}
	return nil
}
