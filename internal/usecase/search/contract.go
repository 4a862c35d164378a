package search

import (
	"context"

	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
)

// Repository is the persistent store of active searches and cached results.
type Repository interface {
	EnsureSchema(ctx context.Context) error

	FindActive(ctx context.Context, lookup domsearch.Lookup) (domsearch.ActiveSearch, bool, error)
	CreateActive(ctx context.Context, key artifact.Key) (domsearch.ActiveSearch, error)
	RemoveActive(ctx context.Context, id string) error
	PurgeActive(ctx context.Context) (int, error)

	// FindResults returns live results, newest first.
	FindResults(ctx context.Context, lookup domsearch.Lookup) ([]domsearch.Result, error)
	StoreResult(ctx context.Context, id string, key artifact.Key, h *hit.Hit) (domsearch.Result, error)
}

// Searcher performs the actual lookup for an artifact. Returning a nil hit
// without an error is a programming error.
type Searcher interface {
	Search(ctx context.Context, req domsearch.Request) (*hit.Hit, error)
}

// SearcherFunc adapts an ordinary function to Searcher.
type SearcherFunc func(ctx context.Context, req domsearch.Request) (*hit.Hit, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, req domsearch.Request) (*hit.Hit, error) {
	return f(ctx, req)
}
