package search

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/asynccts/internal/db"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory implementation of the consumer interface with
// Redis-like expiry driven by a fakeClock.
type memStore struct {
	mu      sync.Mutex
	clock   *fakeClock
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	ints    map[string]int64
	expires map[string]time.Time

	// err, when set, is returned by every call.
	err error
}

func newMemStore(clock *fakeClock) *memStore {
	return &memStore{
		clock:   clock,
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
		ints:    make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

func (m *memStore) evict(key string) {
	if exp, ok := m.expires[key]; ok && !m.clock.Now().Before(exp) {
		delete(m.hashes, key)
		delete(m.sets, key)
		delete(m.zsets, key)
		delete(m.expires, key)
	}
}

func (m *memStore) Ping(_ context.Context) error { return m.err }

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.evict(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := m.HSet(ctx, key, fields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = m.clock.Now().Add(ttl)
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.evict(key)
	if _, ok := m.sets[key]; ok {
		return nil, errWrongType
	}
	if _, ok := m.zsets[key]; ok {
		return nil, errWrongType
	}
	h, ok := m.hashes[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		h, err := m.HGetAll(ctx, k)
		if err == db.ErrKeyNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (m *memStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *memStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, mem := range members {
		delete(m.sets[key], mem)
	}
	if len(m.sets[key]) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *memStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]string, 0, len(m.sets[key]))
	for mem := range m.sets[key] {
		out = append(out, mem)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) ZAddWithTTL(_ context.Context, key string, score float64, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.evict(key)
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	z[member] = score
	m.expires[key] = m.clock.Now().Add(ttl)
	return nil
}

func (m *memStore) ZRevMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.evict(key)
	z := m.zsets[key]
	out := make([]string, 0, len(z))
	for mem := range z {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool {
		if z[out[i]] != z[out[j]] {
			return z[out[i]] > z[out[j]]
		}
		return out[i] > out[j]
	})
	return out, nil
}

func (m *memStore) ZRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, mem := range members {
		delete(m.zsets[key], mem)
	}
	return nil
}

func (m *memStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.ints[key]++
	return m.ints[key], nil
}

func (m *memStore) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, k := range keys {
		m.evict(k)
		_, h := m.hashes[k]
		_, s := m.sets[k]
		_, z := m.zsets[k]
		if h || s || z {
			n++
		}
		delete(m.hashes, k)
		delete(m.sets, k)
		delete(m.zsets, k)
		delete(m.expires, k)
	}
	return n, nil
}

func (m *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []string
	add := func(k string) {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	for k := range m.hashes {
		add(k)
	}
	for k := range m.sets {
		add(k)
	}
	for k := range m.zsets {
		add(k)
	}
	return out, nil
}

// fixedIDs hands out ids in the given order, e.g. to mimic random UUIDs
// that sort against insertion order.
func fixedIDs(ids ...string) func() string {
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		ids = ids[1:]
		return id
	}
}

// seqIDs returns a deterministic id generator: id-1, id-2, ...
func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "id-" + strconv.Itoa(n)
	}
}

func newTestRepo(ttl time.Duration) (*Repo, *memStore, *fakeClock) {
	clock := newFakeClock()
	ms := newMemStore(clock)
	r := New(ms, "cts", ttl, WithClock(clock.Now), WithIDGenerator(seqIDs()))
	return r, ms, clock
}

var errWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

var errConnRefused = fmt.Errorf("%w: dial tcp 127.0.0.1:6379: connect: connection refused", db.ErrUnavailable)
