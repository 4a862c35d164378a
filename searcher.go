package asynccts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
	domsearch "github.com/kailas-cloud/asynccts/internal/domain/search"
)

// Artifact identifies what is searched for, e.g. {"net.uri", "https://x.test"}.
type Artifact struct {
	Type  string
	Value string
}

// Attachment is a file uploaded together with an artifact. The file is
// removed once the search finishes.
type Attachment struct {
	Path             string
	Name             string
	TransferEncoding string
	Size             int64
}

// Open opens the uploaded file for reading.
func (a *Attachment) Open() (*os.File, error) {
	f, err := os.Open(filepath.Clean(a.Path))
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	return f, nil
}

// Query is what a Searcher is asked to look up.
type Query struct {
	Artifact   Artifact
	Attachment *Attachment // nil when nothing was uploaded
}

// Property is one typed, named fact of a hit.
type Property = hit.Property

// Property types.
const (
	PropertyString = hit.String
	PropertyNumber = hit.Number
	PropertyURI    = hit.URI
	PropertyIP     = hit.IP
	PropertyLatLng = hit.LatLng
)

// StringProperty returns a free-text property.
func StringProperty(name, value string) Property { return hit.StringProperty(name, value) }

// NumberProperty returns an integer property.
func NumberProperty(name string, value int64) Property { return hit.NumberProperty(name, value) }

// URIProperty returns a URI property.
func URIProperty(name, value string) Property { return hit.URIProperty(name, value) }

// IPProperty returns an IP address property.
func IPProperty(name, value string) Property { return hit.IPProperty(name, value) }

// LatLngProperty returns a coordinates property.
func LatLngProperty(name string, lat, lng float64) Property {
	return hit.LatLngProperty(name, lat, lng)
}

// Searcher looks up one artifact. An empty result means nothing was found.
// Property names must be unique.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Property, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, q Query) ([]Property, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, q Query) ([]Property, error) {
	return f(ctx, q)
}

// HealthChecker is optionally implemented by a Searcher to take part in
// GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// searcherAdapter wraps a public Searcher to satisfy the coordinator.
type searcherAdapter struct {
	inner Searcher
}

func (a *searcherAdapter) Search(ctx context.Context, req domsearch.Request) (*hit.Hit, error) {
	props, err := a.inner.Search(ctx, toQuery(req))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	h, err := hit.New(props...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSearcherReturn, err)
	}
	return h, nil
}

func (a *searcherAdapter) HealthCheck(ctx context.Context) error {
	hc, ok := a.inner.(HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("searcher health check: %w", err)
	}
	return nil
}

func toQuery(req domsearch.Request) Query {
	q := Query{Artifact: Artifact{Type: req.Artifact.Type(), Value: req.Artifact.Value()}}
	if a := req.Attachment; a != nil {
		q.Attachment = &Attachment{
			Path:             a.Path,
			Name:             a.Name,
			TransferEncoding: a.TransferEncoding,
			Size:             a.Size,
		}
	}
	return q
}
