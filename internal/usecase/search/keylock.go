package search

import (
	"sync"

	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
)

// keyLock serializes callers per artifact. Entries are dropped once unused.
type keyLock struct {
	mu    sync.Mutex
	locks map[artifact.Key]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[artifact.Key]*keyLockEntry)}
}

// Lock blocks until key is free and returns the matching unlock.
func (l *keyLock) Lock(key artifact.Key) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyLockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
