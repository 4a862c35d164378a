package search

import (
	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
)

// Lookup selects store entries either by search id or by artifact, never both.
type Lookup struct {
	id       string
	artifact artifact.Key
}

// ByID looks entries up by search id.
func ByID(id string) Lookup { return Lookup{id: id} }

// ByArtifact looks entries up by artifact.
func ByArtifact(key artifact.Key) Lookup { return Lookup{artifact: key} }

// NewLookup builds a Lookup from optional criteria. Use Validate before
// handing it to a store.
func NewLookup(id string, key artifact.Key) Lookup { return Lookup{id: id, artifact: key} }

// ID returns the search id criterion.
func (l Lookup) ID() (string, bool) { return l.id, l.id != "" }

// Artifact returns the artifact criterion.
func (l Lookup) Artifact() (artifact.Key, bool) { return l.artifact, !l.artifact.IsZero() }

// Validate checks that exactly one criterion is set.
func (l Lookup) Validate() error {
	_, hasID := l.ID()
	_, hasArtifact := l.Artifact()
	switch {
	case !hasID && !hasArtifact:
		return domain.ErrMissingLookupCriteria
	case hasID && hasArtifact:
		return domain.ErrAmbiguousLookupCriteria
	}
	return nil
}

func (l Lookup) String() string {
	if l.id != "" {
		return "id=" + l.id
	}
	return "artifact=" + l.artifact.String()
}
