package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	SetStore
	SortedSetStore
	CounterStore
	KeyStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// SetStore provides unordered set operations.
type SetStore interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// SortedSetStore provides score-ordered set operations.
type SortedSetStore interface {
	// ZAddWithTTL adds member with score and (re)sets the key expiry in one round-trip.
	ZAddWithTTL(ctx context.Context, key string, score float64, member string, ttl time.Duration) error
	// ZRevMembers returns all members, highest score first.
	ZRevMembers(ctx context.Context, key string) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error
}

// CounterStore provides integer counters.
type CounterStore interface {
	// Get returns the raw value, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Incr adds one and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, val int64) error
}

// KeyStore provides generic key operations.
type KeyStore interface {
	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}
