package search

import (
	"time"

	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
)

// ActiveSearch marks in-flight work for an artifact.
type ActiveSearch struct {
	id        string
	artifact  artifact.Key
	createdAt time.Time
}

// NewActiveSearch creates an ActiveSearch.
func NewActiveSearch(id string, key artifact.Key, createdAt time.Time) ActiveSearch {
	return ActiveSearch{id: id, artifact: key, createdAt: createdAt}
}

// ID returns the opaque search handle.
func (a *ActiveSearch) ID() string { return a.id }

// Artifact returns the artifact being searched.
func (a *ActiveSearch) Artifact() artifact.Key { return a.artifact }

// CreatedAt returns when the search was launched.
func (a *ActiveSearch) CreatedAt() time.Time { return a.createdAt }

// Result is the stored outcome of a finished search. It is never mutated
// after creation and stops being visible once its TTL has elapsed.
type Result struct {
	searchID string
	artifact artifact.Key
	hit      *hit.Hit
	foundAt  time.Time
	ttl      time.Duration
}

// NewResult creates a Result. A nil hit is stored as the empty hit.
func NewResult(searchID string, key artifact.Key, h *hit.Hit, foundAt time.Time, ttl time.Duration) Result {
	if h == nil {
		h = hit.Empty()
	}
	return Result{searchID: searchID, artifact: key, hit: h, foundAt: foundAt, ttl: ttl}
}

// SearchID returns the id of the search that produced the result.
func (r *Result) SearchID() string { return r.searchID }

// Artifact returns the searched artifact.
func (r *Result) Artifact() artifact.Key { return r.artifact }

// Hit returns the search outcome.
func (r *Result) Hit() *hit.Hit { return r.hit }

// FoundAt returns when the result was stored.
func (r *Result) FoundAt() time.Time { return r.foundAt }

// TTL returns how long the result stays visible after FoundAt.
func (r *Result) TTL() time.Duration { return r.ttl }

// ExpiresAt returns the instant the result stops being visible.
func (r *Result) ExpiresAt() time.Time { return r.foundAt.Add(r.ttl) }

// Expired reports whether the result is past its TTL at now.
func (r *Result) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt())
}

// Newest returns the most recently found result. The bool is false for an
// empty slice. Ties keep the earlier element.
func Newest(results []Result) (Result, bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.foundAt.After(best.foundAt) {
			best = r
		}
	}
	return best, true
}
