package search

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/kailas-cloud/asynccts/internal/domain/artifact"
)

// Request is what a Searcher receives: the artifact and an optional attachment.
type Request struct {
	Artifact   artifact.Key
	Attachment *Attachment
}

// Attachment is an uploaded file spooled to local disk. It is owned by the
// coordinator and released once the search no longer needs it.
type Attachment struct {
	Path             string
	Name             string
	TransferEncoding string
	Size             int64
}

// Open opens the spooled file for reading.
func (a *Attachment) Open() (*os.File, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	return f, nil
}

// Release removes the spooled file. Releasing a nil attachment or an already
// removed file is a no-op.
func (a *Attachment) Release() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release attachment: %w", err)
	}
	return nil
}
