package search

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/asynccts/internal/domain"
	"github.com/kailas-cloud/asynccts/internal/domain/hit"
)

// Response answers Submit and Poll: an id plus exactly one of retry_secs
// (search still running) or hits (search finished).
type Response struct {
	id        string
	retrySecs int
	hits      *hit.Hit
}

// NewPendingResponse tells the caller to poll id again after retrySecs.
func NewPendingResponse(id string, retrySecs int) (Response, error) {
	if id == "" {
		return Response{}, fmt.Errorf("%w: id is required", domain.ErrInvalidResponse)
	}
	if retrySecs <= 0 {
		return Response{}, fmt.Errorf("%w: retry_secs must be positive", domain.ErrInvalidResponse)
	}
	return Response{id: id, retrySecs: retrySecs}, nil
}

// NewHitsResponse carries the finished outcome of search id.
func NewHitsResponse(id string, h *hit.Hit) (Response, error) {
	if id == "" {
		return Response{}, fmt.Errorf("%w: id is required", domain.ErrInvalidResponse)
	}
	if h == nil {
		return Response{}, fmt.Errorf("%w: hits are required", domain.ErrInvalidResponse)
	}
	return Response{id: id, hits: h}, nil
}

// ID returns the search handle.
func (r Response) ID() string { return r.id }

// RetrySecs returns the polling interval of a pending response.
func (r Response) RetrySecs() (int, bool) { return r.retrySecs, r.hits == nil }

// Hits returns the outcome of a finished response.
func (r Response) Hits() (*hit.Hit, bool) { return r.hits, r.hits != nil }

// Pending reports whether the search is still running.
func (r Response) Pending() bool { return r.hits == nil }

type wireResponse struct {
	ID        string   `json:"id"`
	RetrySecs *int     `json:"retry_secs,omitempty"`
	Hits      *hit.Hit `json:"hits,omitempty"`
}

// MarshalJSON encodes {"id", "retry_secs"} or {"id", "hits"}.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.id == "" {
		return nil, fmt.Errorf("%w: id is required", domain.ErrInvalidResponse)
	}
	w := wireResponse{ID: r.id}
	if r.hits != nil {
		w.Hits = r.hits
	} else {
		if r.retrySecs <= 0 {
			return nil, fmt.Errorf("%w: retry_secs or hits is required", domain.ErrInvalidResponse)
		}
		w.RetrySecs = &r.retrySecs
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes and validates a response.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.RetrySecs != nil && w.Hits != nil {
		return fmt.Errorf("%w: both retry_secs and hits are set", domain.ErrInvalidResponse)
	}

	var (
		resp Response
		err  error
	)
	switch {
	case w.Hits != nil:
		resp, err = NewHitsResponse(w.ID, w.Hits)
	case w.RetrySecs != nil:
		resp, err = NewPendingResponse(w.ID, *w.RetrySecs)
	default:
		err = fmt.Errorf("%w: retry_secs or hits is required", domain.ErrInvalidResponse)
	}
	if err != nil {
		return err
	}
	*r = resp
	return nil
}

// Capabilities describes what the service accepts.
type Capabilities struct {
	SupportsAttachments bool `json:"upload_file"`
}
