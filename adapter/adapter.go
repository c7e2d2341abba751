// Package adapter defines the boundary for publishing run completion
// notifications to downstream systems.
//
// Adapters are fire-and-forget from the engine's point of view: the
// driver publishes after the run reaches a terminal status, and a
// publish failure is logged without altering the run outcome or the
// process exit code.
package adapter

import "context"

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "run_completed"
	RunID           string `json:"run_id"`
	Runbook         string `json:"runbook"`
	Status          string `json:"status"` // completed, failed
	Reason          string `json:"reason,omitempty"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	Skipped         int    `json:"skipped"`
	DurationMs      int64  `json:"duration_ms"`
	StorePath       string `json:"store_path,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO 8601
}

// Adapter publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
