package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSearchID signals a search id that is neither active nor resulted.
	// It means the active/result invariant broke and is reported as a server fault.
	ErrUnknownSearchID = errors.New("unknown search id")
	// ErrPayloadTooLarge signals an attachment larger than the configured maximum.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrAttachmentsUnsupported signals an attachment sent to a service with uploads disabled.
	ErrAttachmentsUnsupported = errors.New("attachments are not supported")
	// ErrInvalidArtifact signals a malformed artifact payload.
	ErrInvalidArtifact = errors.New("invalid artifact")

	// ErrStoreUnavailable signals that the backing store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMissingLookupCriteria signals a store lookup with neither id nor artifact.
	ErrMissingLookupCriteria = errors.New("missing lookup criteria")
	// ErrAmbiguousLookupCriteria signals a store lookup with both id and artifact.
	ErrAmbiguousLookupCriteria = errors.New("ambiguous lookup criteria")
	// ErrActiveSearchNotFound signals a removal of an active search that does not exist.
	ErrActiveSearchNotFound = errors.New("active search not found")
	// ErrMultipleActiveSearchesRemoved signals that one removal deleted more than one entry.
	ErrMultipleActiveSearchesRemoved = errors.New("multiple active searches removed")
	// ErrMultipleResults signals more than one stored result for a single search id.
	ErrMultipleResults = errors.New("multiple results for search id")

	// ErrInvalidSearcherReturn signals a searcher that returned neither a hit nor an error.
	ErrInvalidSearcherReturn = errors.New("invalid searcher return")
	// ErrSearcherFailed signals a searcher that returned an error.
	ErrSearcherFailed = errors.New("searcher failed")
	// ErrSearcherQuotaExceeded signals an exhausted searcher token budget.
	ErrSearcherQuotaExceeded = errors.New("searcher token quota exceeded")
	// ErrInvalidResponse signals a response built without id or body.
	ErrInvalidResponse = errors.New("invalid response")
)

// IntegrityError reports a violated store invariant together with the affected search id.
type IntegrityError struct {
	SearchID string
	Err      error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation for search %s: %s", e.SearchID, e.Err.Error())
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// NewIntegrityError wraps a sentinel integrity error with the search id it concerns.
func NewIntegrityError(searchID string, err error) error {
	return &IntegrityError{SearchID: searchID, Err: err}
}

// IsIntegrityError reports whether err signals a broken store invariant.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return true
	}
	return errors.Is(err, ErrUnknownSearchID) ||
		errors.Is(err, ErrMultipleActiveSearchesRemoved) ||
		errors.Is(err, ErrMultipleResults)
}
