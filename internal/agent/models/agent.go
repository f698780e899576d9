// Package models defines the agent domain entities.
package models

import "time"

// Status is the desired-state lifecycle status of an agent.
type Status string

const (
	// StatusCreating means the row exists and the worker launch is in
	// flight.
	StatusCreating Status = "creating"
	// StatusRunning means the worker handshook and is serving.
	StatusRunning Status = "running"
	// StatusError means the worker is missing or failed.
	StatusError Status = "error"
	// StatusRecovering means the reconciler is relaunching the worker.
	StatusRecovering Status = "recovering"
	// StatusTerminating is the one-way sink preceding deletion.
	StatusTerminating Status = "terminating"
)

// Heartbeat period bounds, in seconds.
const (
	MinHeartbeatSeconds = 300
	MaxHeartbeatSeconds = 86400
)

// Agent is a logical worker: desired state in the store, actual state
// in the worker runtime.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Identity    string `json:"identity"`
	Personality string `json:"personality"`
	// Memory is the agent's freeform long-term memory text.
	Memory string `json:"memory"`

	HeartbeatSeconds int    `json:"heartbeat_seconds"`
	HeartbeatPrompt  string `json:"heartbeat_prompt"`
	HeartbeatEnabled bool   `json:"heartbeat_enabled"`

	ModelProvider string `json:"model_provider"`
	ModelName     string `json:"model_name"`

	// WorkerHandle is the runtime handle of the agent's worker. Empty
	// when no worker is attached. Invariant: non-empty whenever
	// Status is StatusRunning.
	WorkerHandle string `json:"worker_handle,omitempty"`
	Status       Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusCreating, StatusRunning, StatusError, StatusRecovering, StatusTerminating:
		return true
	}
	return false
}
