package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/asynccts/internal/db"
	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
)

// store is the consumer interface for the active-search registry and result cache (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	ZAddWithTTL(ctx context.Context, key string, score float64, member string, ttl time.Duration) error
	ZRevMembers(ctx context.Context, key string) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo keeps active searches and results in Redis/Valkey.
//
// Layout under asynccts:<service>:
//
//	active:<id>                 hash {type, value, created_at}
//	active_idx:<digest>         set of active ids
//	result:seq                  row sequence
//	result:row:<row>            hash {search_id, type, value, hit, found_at, ttl_ms}, EXPIRE ttl
//	result:id:<id>              zset of rows scored by found_at, EXPIRE ttl
//	result:artifact:<digest>    zset of rows scored by found_at, EXPIRE ttl
//
// Search ids are caller-supplied on poll, so nothing else lives under active:.
// Row ids start with a fixed-width sequence; rows found in the same
// millisecond share a score and ZREVRANGE then returns the later row first.
// Rows expire natively; reads also drop rows whose found_at + ttl has passed.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

// Option configures a Repo.
type Option func(*Repo)

// WithClock overrides the time source used for created_at, found_at and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) { r.now = now }
}

// WithIDGenerator overrides search and row id generation.
func WithIDGenerator(newID func() string) Option {
	return func(r *Repo) { r.newID = newID }
}

// New creates a repository for one service instance. ttl applies to every stored result.
func New(s store, serviceID string, ttl time.Duration, opts ...Option) *Repo {
	r := &Repo{
		store:  s,
		prefix: domain.KeyPrefix + serviceID + ":",
		ttl:    ttl,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureSchema verifies connectivity. Expiry is native, so there is no index to create.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// FindActive returns the active search matching lookup. When several ids are
// registered for one artifact the oldest wins.
func (r *Repo) FindActive(ctx context.Context, lookup domsearch.Lookup) (domsearch.ActiveSearch, bool, error) {
	if err := lookup.Validate(); err != nil {
		return domsearch.ActiveSearch{}, false, err
	}

	if id, ok := lookup.ID(); ok {
		fields, err := r.store.HGetAll(ctx, r.activeKey(id))
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				return domsearch.ActiveSearch{}, false, nil
			}
			return domsearch.ActiveSearch{}, false, storeErr("find active "+id, err)
		}
		a, err := parseActive(id, fields)
		if err != nil {
			return domsearch.ActiveSearch{}, false, err
		}
		return a, true, nil
	}

	key, _ := lookup.Artifact()
	setKey := r.activeArtifactKey(key)
	ids, err := r.store.SMembers(ctx, setKey)
	if err != nil {
		return domsearch.ActiveSearch{}, false, storeErr("find active "+key.String(), err)
	}
	if len(ids) == 0 {
		return domsearch.ActiveSearch{}, false, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.activeKey(id)
	}
	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return domsearch.ActiveSearch{}, false, storeErr("find active "+key.String(), err)
	}

	var (
		best     domsearch.ActiveSearch
		found    bool
		dangling []string
	)
	for i, fields := range rows {
		if fields == nil {
			dangling = append(dangling, ids[i])
			continue
		}
		a, err := parseActive(ids[i], fields)
		if err != nil {
			return domsearch.ActiveSearch{}, false, err
		}
		if !found || a.CreatedAt().Before(best.CreatedAt()) {
			best, found = a, true
		}
	}
	if len(dangling) > 0 {
		_ = r.store.SRem(ctx, setKey, dangling...)
	}
	return best, found, nil
}

// CreateActive registers a new active search for key and returns it.
func (r *Repo) CreateActive(ctx context.Context, key artifact.Key) (domsearch.ActiveSearch, error) {
	a := domsearch.NewActiveSearch(r.newID(), key, r.now())
	if err := r.store.HSet(ctx, r.activeKey(a.ID()), activeFields(&a)); err != nil {
		return domsearch.ActiveSearch{}, storeErr("create active", err)
	}
	if err := r.store.SAdd(ctx, r.activeArtifactKey(key), a.ID()); err != nil {
		return domsearch.ActiveSearch{}, storeErr("index active", err)
	}
	return a, nil
}

// RemoveActive deletes the active search id. Deleting nothing yields
// domain.ErrActiveSearchNotFound. Each id owns exactly one key here, so
// domain.ErrMultipleActiveSearchesRemoved can only come from a backend that
// stores ids as non-unique rows; the n > 1 branch keeps the contract shared.
func (r *Repo) RemoveActive(ctx context.Context, id string) error {
	key := r.activeKey(id)
	fields, err := r.store.HGetAll(ctx, key)
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return storeErr("remove active "+id, err)
	}

	n, err := r.store.Del(ctx, key)
	if err != nil {
		return storeErr("remove active "+id, err)
	}
	switch {
	case n == 0:
		return fmt.Errorf("%w: %s", domain.ErrActiveSearchNotFound, id)
	case n > 1:
		return fmt.Errorf("%w: %d entries for %s", domain.ErrMultipleActiveSearchesRemoved, n, id)
	}

	if fields != nil {
		a := artifact.New(fields[fieldType], fields[fieldValue])
		if err := r.store.SRem(ctx, r.activeArtifactKey(a), id); err != nil {
			return storeErr("unindex active "+id, err)
		}
	}
	return nil
}

// PurgeActive removes every active search of this service and returns how many there were.
func (r *Repo) PurgeActive(ctx context.Context) (int, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"active:*")
	if err != nil {
		return 0, storeErr("scan active", err)
	}
	indexes, err := r.store.Scan(ctx, r.prefix+"active_idx:*")
	if err != nil {
		return 0, storeErr("scan active index", err)
	}
	purged := len(keys)
	keys = append(keys, indexes...)
	if len(keys) == 0 {
		return 0, nil
	}
	if _, err := r.store.Del(ctx, keys...); err != nil {
		return 0, storeErr("purge active", err)
	}
	return purged, nil
}

// FindResults returns every live result matching lookup, newest first.
func (r *Repo) FindResults(ctx context.Context, lookup domsearch.Lookup) ([]domsearch.Result, error) {
	if err := lookup.Validate(); err != nil {
		return nil, err
	}

	var indexKey string
	if id, ok := lookup.ID(); ok {
		indexKey = r.resultIDKey(id)
	} else {
		key, _ := lookup.Artifact()
		indexKey = r.resultArtifactKey(key)
	}

	rowIDs, err := r.store.ZRevMembers(ctx, indexKey)
	if err != nil {
		return nil, storeErr("find results "+lookup.String(), err)
	}
	if len(rowIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(rowIDs))
	for i, row := range rowIDs {
		keys[i] = r.rowKey(row)
	}
	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, storeErr("find results "+lookup.String(), err)
	}

	now := r.now()
	var (
		results []domsearch.Result
		stale   []string
	)
	for i, fields := range rows {
		if fields == nil {
			stale = append(stale, rowIDs[i])
			continue
		}
		res, err := parseResult(fields)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", rowIDs[i], err)
		}
		if res.Expired(now) {
			stale = append(stale, rowIDs[i])
			continue
		}
		results = append(results, res)
	}
	if len(stale) > 0 {
		_ = r.store.ZRem(ctx, indexKey, stale...)
	}
	return results, nil
}

// StoreResult persists a result row. Several rows for one search id are
// accepted; keying is the caller's responsibility.
func (r *Repo) StoreResult(
	ctx context.Context, id string, key artifact.Key, h *hit.Hit,
) (domsearch.Result, error) {
	res := domsearch.NewResult(id, key, h, r.now(), r.ttl)
	fields, err := resultFields(&res)
	if err != nil {
		return domsearch.Result{}, err
	}

	seq, err := r.store.Incr(ctx, r.prefix+"result:seq")
	if err != nil {
		return domsearch.Result{}, storeErr("store result "+id, err)
	}
	row := fmt.Sprintf("%016x-%s", seq, r.newID())
	if err := r.store.HSetWithTTL(ctx, r.rowKey(row), fields, r.ttl); err != nil {
		return domsearch.Result{}, storeErr("store result "+id, err)
	}

	score := float64(res.FoundAt().UnixMilli())
	for _, idx := range []string{r.resultIDKey(id), r.resultArtifactKey(key)} {
		if err := r.store.ZAddWithTTL(ctx, idx, score, row, r.ttl); err != nil {
			return domsearch.Result{}, storeErr("index result "+id, err)
		}
	}
	return res, nil
}

func (r *Repo) activeKey(id string) string { return r.prefix + "active:" + id }

func (r *Repo) activeArtifactKey(k artifact.Key) string {
	return r.prefix + "active_idx:" + k.Digest()
}

func (r *Repo) rowKey(row string) string { return r.prefix + "result:row:" + row }

func (r *Repo) resultIDKey(id string) string { return r.prefix + "result:id:" + id }

func (r *Repo) resultArtifactKey(k artifact.Key) string {
	return r.prefix + "result:artifact:" + k.Digest()
}

// storeErr adds op context and maps connectivity failures to domain.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, db.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
