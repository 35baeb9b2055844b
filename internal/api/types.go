package api

import "github.com/leafsii/blinks-backend/internal/upstream"

// ErrorResponse is the body of every non-2xx action response.
type ErrorResponse struct {
	Message string `json:"message"`
}

type HealthDTO struct {
	Status string `json:"status"`
}

// ReadinessDTO reports upstream and cache state for /readyz.
type ReadinessDTO struct {
	Status    string                     `json:"status"`
	Upstreams map[string]upstream.Health `json:"upstreams"`
	Unhealthy []string                   `json:"unhealthy,omitempty"`
	Cache     string                     `json:"cache"`
	CacheMode string                     `json:"cache_mode,omitempty"`
}
