package domain

import "time"

// ServiceConfig holds the behavioural settings of one deployed threat service.
type ServiceConfig struct {
	ID               string        // names the store tables and key prefix, e.g. "<id>_results"
	RetrySecs        int           // poll interval advertised while a search runs
	HitTTL           time.Duration // lifetime of a cached result
	UploadsEnabled   bool
	MaxUploadSize    int64 // bytes
	SerializeSubmits bool  // per-artifact in-process lock around submit
}

// DefaultServiceConfig returns the settings used when configuration leaves them empty.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ID:            "cts",
		RetrySecs:     30,
		HitTTL:        24 * time.Hour,
		MaxUploadSize: 10 << 20,
	}
}
