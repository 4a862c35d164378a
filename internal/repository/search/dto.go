package search

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/asynccts/internal/codec"
	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
)

const (
	fieldType      = "type"
	fieldValue     = "value"
	fieldCreatedAt = "created_at"
	fieldSearchID  = "search_id"
	fieldHit       = "hit"
	fieldFoundAt   = "found_at"
	fieldTTL       = "ttl_ms"
)

func activeFields(a *domsearch.ActiveSearch) map[string]string {
	return map[string]string{
		fieldType:      a.Artifact().Type(),
		fieldValue:     a.Artifact().Value(),
		fieldCreatedAt: strconv.FormatInt(a.CreatedAt().UnixMilli(), 10),
	}
}

func parseActive(id string, m map[string]string) (domsearch.ActiveSearch, error) {
	created, err := parseMillis(m[fieldCreatedAt])
	if err != nil {
		return domsearch.ActiveSearch{}, fmt.Errorf("active %s: %s: %w", id, fieldCreatedAt, err)
	}
	return domsearch.NewActiveSearch(id, artifact.New(m[fieldType], m[fieldValue]), created), nil
}

func resultFields(r *domsearch.Result) (map[string]string, error) {
	data, err := codec.EncodeHit(r.Hit())
	if err != nil {
		return nil, fmt.Errorf("encode hit: %w", err)
	}
	return map[string]string{
		fieldSearchID: r.SearchID(),
		fieldType:     r.Artifact().Type(),
		fieldValue:    r.Artifact().Value(),
		fieldHit:      string(data),
		fieldFoundAt:  strconv.FormatInt(r.FoundAt().UnixMilli(), 10),
		fieldTTL:      strconv.FormatInt(r.TTL().Milliseconds(), 10),
	}, nil
}

func parseResult(m map[string]string) (domsearch.Result, error) {
	h, err := codec.DecodeHit([]byte(m[fieldHit]))
	if err != nil {
		return domsearch.Result{}, fmt.Errorf("decode hit %s: %w", codec.Diagnose([]byte(m[fieldHit])), err)
	}
	found, err := parseMillis(m[fieldFoundAt])
	if err != nil {
		return domsearch.Result{}, fmt.Errorf("%s: %w", fieldFoundAt, err)
	}
	ttl, err := strconv.ParseInt(m[fieldTTL], 10, 64)
	if err != nil {
		return domsearch.Result{}, fmt.Errorf("%s: %w", fieldTTL, err)
	}
	return domsearch.NewResult(
		m[fieldSearchID],
		artifact.New(m[fieldType], m[fieldValue]),
		h, found, time.Duration(ttl)*time.Millisecond,
	), nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
