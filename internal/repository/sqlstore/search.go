package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
)

// FindActive returns the active search matching lookup. When several ids are
// registered for one artifact the oldest wins.
func (s *Store) FindActive(ctx context.Context, lookup domsearch.Lookup) (domsearch.ActiveSearch, bool, error) {
	if err := lookup.Validate(); err != nil {
		return domsearch.ActiveSearch{}, false, err
	}

	query := fmt.Sprintf(`SELECT search_id, artifact_type, artifact_value, created_at FROM %q `, s.active)
	var args []any
	if id, ok := lookup.ID(); ok {
		query += `WHERE search_id = ?`
		args = append(args, id)
	} else {
		key, _ := lookup.Artifact()
		query += `WHERE artifact_type = ? AND artifact_value = ? ORDER BY created_at ASC, search_id ASC LIMIT 1`
		args = append(args, key.Type(), key.Value())
	}

	var (
		id, typ, value string
		created        int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &typ, &value, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domsearch.ActiveSearch{}, false, nil
	}
	if err != nil {
		return domsearch.ActiveSearch{}, false, storeErr("find active "+lookup.String(), err)
	}
	return domsearch.NewActiveSearch(id, artifact.New(typ, value), time.UnixMilli(created)), true, nil
}

// CreateActive registers a new active search for key and returns it.
func (s *Store) CreateActive(ctx context.Context, key artifact.Key) (domsearch.ActiveSearch, error) {
	a := domsearch.NewActiveSearch(s.newID(), key, s.now())
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (search_id, artifact_type, artifact_value, created_at) VALUES (?, ?, ?, ?)`,
			s.active),
		a.ID(), key.Type(), key.Value(), a.CreatedAt().UnixMilli(),
	)
	if err != nil {
		return domsearch.ActiveSearch{}, storeErr("create active", err)
	}
	return a, nil
}

// RemoveActive deletes the active search id. Deleting nothing yields
// domain.ErrActiveSearchNotFound; deleting more than one row yields
// domain.ErrMultipleActiveSearchesRemoved.
func (s *Store) RemoveActive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE search_id = ?`, s.active), id)
	if err != nil {
		return storeErr("remove active "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("remove active "+id, err)
	}
	switch {
	case n == 0:
		return fmt.Errorf("%w: %s", domain.ErrActiveSearchNotFound, id)
	case n > 1:
		return fmt.Errorf("%w: %d rows for %s", domain.ErrMultipleActiveSearchesRemoved, n, id)
	}
	return nil
}

// PurgeActive removes every active search and returns how many there were.
func (s *Store) PurgeActive(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, s.active))
	if err != nil {
		return 0, storeErr("purge active", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("purge active", err)
	}
	return int(n), nil
}

// FindResults returns every live result matching lookup, newest first.
func (s *Store) FindResults(ctx context.Context, lookup domsearch.Lookup) ([]domsearch.Result, error) {
	if err := lookup.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT search_id, artifact_type, artifact_value, hit, found_at, ttl_ms FROM %q WHERE found_at + ttl_ms > ? `,
		s.results)
	args := []any{s.now().UnixMilli()}
	if id, ok := lookup.ID(); ok {
		query += `AND search_id = ? `
		args = append(args, id)
	} else {
		key, _ := lookup.Artifact()
		query += `AND artifact_type = ? AND artifact_value = ? `
		args = append(args, key.Type(), key.Value())
	}
	query += `ORDER BY found_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("find results "+lookup.String(), err)
	}
	defer rows.Close()

	var results []domsearch.Result
	for rows.Next() {
		var (
			id, typ, value, raw string
			found, ttl          int64
		)
		if err := rows.Scan(&id, &typ, &value, &raw, &found, &ttl); err != nil {
			return nil, storeErr("scan result", err)
		}
		var h hit.Hit
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			return nil, fmt.Errorf("decode hit of %s: %w", id, err)
		}
		results = append(results, domsearch.NewResult(
			id, artifact.New(typ, value), &h, time.UnixMilli(found), time.Duration(ttl)*time.Millisecond,
		))
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("find results "+lookup.String(), err)
	}
	return results, nil
}

// StoreResult inserts a result row. Several rows for one search id are
// accepted; keying is the caller's responsibility.
func (s *Store) StoreResult(
	ctx context.Context, id string, key artifact.Key, h *hit.Hit,
) (domsearch.Result, error) {
	res := domsearch.NewResult(id, key, h, s.now(), s.ttl)
	data, err := json.Marshal(res.Hit())
	if err != nil {
		return domsearch.Result{}, fmt.Errorf("encode hit: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (row_id, search_id, artifact_type, artifact_value, hit, found_at, ttl_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, s.results),
		s.newID(), id, key.Type(), key.Value(), string(data), res.FoundAt().UnixMilli(), res.TTL().Milliseconds(),
	)
	if err != nil {
		return domsearch.Result{}, storeErr("store result "+id, err)
	}
	return res, nil
}
