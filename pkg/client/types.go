package client

import (
	"time"

	"github.com/kailas-cloud/asynccts"
)

// Response is the state of one search.
type Response struct {
	ID        string
	RetrySecs int                 // set while the search runs
	Hits      []asynccts.Property // set once it finished; may be empty
	done      bool
}

// Pending reports whether the search is still running.
func (r Response) Pending() bool { return !r.done }

// RetryAfter is how long the service asks to wait before the next poll.
func (r Response) RetryAfter() time.Duration {
	return time.Duration(r.RetrySecs) * time.Second
}

// Capabilities describes what the service accepts.
type Capabilities struct {
	SupportsAttachments bool
}

// HealthStatus represents the aggregated service health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component -> "ok"/"error"
}
