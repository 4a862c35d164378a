package client

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/asynccts/internal/domain"
)

// Sentinel errors matched by APIError. Use errors.Is() to check.
var (
	ErrInvalidArtifact        = domain.ErrInvalidArtifact
	ErrPayloadTooLarge        = domain.ErrPayloadTooLarge
	ErrAttachmentsUnsupported = domain.ErrAttachmentsUnsupported
	ErrStoreUnavailable       = domain.ErrStoreUnavailable
	ErrUnauthorized           = errors.New("unauthorized")
	ErrIntegrity              = errors.New("service integrity error")
)

// APIError is a non-2xx reply of the service.
type APIError struct {
	StatusCode int
	Code       string // machine-readable class, e.g. "validation_failed"
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("asynccts: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("asynccts: %s (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// Is maps the reply class onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case "validation_failed":
		return target == ErrInvalidArtifact
	case "payload_too_large":
		return target == ErrPayloadTooLarge
	case "unsupported_media_type":
		return target == ErrAttachmentsUnsupported
	case "service_unavailable":
		return target == ErrStoreUnavailable
	case "unauthorized":
		return target == ErrUnauthorized
	case "integrity_error":
		return target == ErrIntegrity
	}
	return false
}
