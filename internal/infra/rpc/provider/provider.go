// Package provider implements REST providers for chain data lookups.
package provider

import (
	"context"
	"time"
)

// Provider is a chain data endpoint with health tracking.
type Provider interface {
	// GetName returns provider identifier (e.g., "whatsonchain")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// Get performs a GET against a path relative to the provider endpoint
	Get(ctx context.Context, path string) ([]byte, error)

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	RetryAfter    time.Time     `json:"retry_after,omitempty"`
}
