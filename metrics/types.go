// Package metrics provides in-memory generation metrics for the status API.
// This file contains atom-level type definitions with no behavior.
package metrics

import "time"

// GenerationRecord describes one completed (or failed) generation.
type GenerationRecord struct {
	// ID is the generation id returned to the client in X-Generation-ID
	ID string `json:"id"`

	// Style is the requested style ("animated", "realistic" or empty)
	Style string `json:"style,omitempty"`

	// Status is "success" or "error"
	Status string `json:"status"`

	// FailureKind is the failure class for errored generations
	// ("initialization", "input_conditioning", "inference_runtime", "invalid_parameter")
	FailureKind string `json:"failure_kind,omitempty"`

	// StartTime is when the request reached the generator
	StartTime time.Time `json:"start_time"`

	// EndTime is when the generator returned
	EndTime time.Time `json:"end_time"`

	// Wait is how long the request blocked on the generation lock
	Wait time.Duration `json:"wait"`

	// Duration is the end-to-end generation time including Wait
	Duration time.Duration `json:"duration"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// ErrorMsg contains error details if Status is "error"
	ErrorMsg string `json:"error_msg,omitempty"`
}

// SystemStatus represents the overall service health.
type SystemStatus struct {
	// Health is "running" or "degraded"
	Health string `json:"health"`

	Version string `json:"version"`

	// Uptime is the duration since the store was created
	Uptime time.Duration `json:"uptime"`

	LastCheck time.Time `json:"last_check"`
}

// GenerationMetrics is the aggregate view over every recorded generation.
type GenerationMetrics struct {
	TotalProcessed int64 `json:"total_processed"`
	TotalSuccess   int64 `json:"total_success"`
	TotalErrors    int64 `json:"total_errors"`

	// SuccessRate is the percentage of successful generations (0-100)
	SuccessRate float64 `json:"success_rate"`

	AvgWait     time.Duration `json:"avg_wait"`
	AvgDuration time.Duration `json:"avg_duration"`

	// LastGeneration is the end time of the most recent record
	LastGeneration time.Time `json:"last_generation,omitempty"`

	// ByStyle contains per-style statistics; the empty style is reported as "none"
	ByStyle map[string]*StyleMetrics `json:"by_style"`

	// ByFailure counts errors per failure kind
	ByFailure map[string]int64 `json:"by_failure,omitempty"`
}

// StyleMetrics represents statistics for a single style.
type StyleMetrics struct {
	Count       int64         `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Status constants for GenerationRecord
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Health constants for SystemStatus
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
)

// StyleNone is the ByStyle key used for requests without a style.
const StyleNone = "none"
