package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrUnavailable marks failures to reach the server, as opposed to errors
	// the server replied with.
	ErrUnavailable = errors.New("db: unavailable")
)

// Op constants map to Valkey/Redis command names for error context.
const (
	OpPing     = "PING"
	OpGet      = "GET"
	OpIncr     = "INCR"
	OpIncrBy   = "INCRBY"
	OpDel      = "DEL"
	OpHGetAll  = "HGETALL"
	OpHSet     = "HSET"
	OpExists   = "EXISTS"
	OpScan     = "SCAN"
	OpExpire   = "EXPIRE"
	OpSAdd     = "SADD"
	OpSRem     = "SREM"
	OpSMembers = "SMEMBERS"
	OpZAdd     = "ZADD"
	OpZRange   = "ZREVRANGE"
	OpZRem     = "ZREM"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
