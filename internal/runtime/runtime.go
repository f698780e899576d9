// Package runtime abstracts the substrate that hosts agent worker
// containers. The orchestrator reconciles desired agent state against
// what the runtime reports.
package runtime

import "context"

// Phase is the coarse lifecycle phase of a worker.
type Phase string

const (
	// PhasePending means the worker exists but is not serving yet.
	PhasePending Phase = "pending"
	// PhaseRunning means the worker is up.
	PhaseRunning Phase = "running"
	// PhaseFailed means the worker exited or is otherwise unusable.
	PhaseFailed Phase = "failed"
)

// LaunchSpec describes the worker to launch for an agent.
type LaunchSpec struct {
	AgentID string
	// Env is passed to the worker container verbatim.
	Env map[string]string
}

// WorkerInfo describes a worker the runtime knows about.
type WorkerInfo struct {
	// Handle identifies the worker within the runtime.
	Handle string
	// AgentID is the agent the worker belongs to.
	AgentID string
	Phase   Phase
}

// Runtime manages worker lifecycles. Handles are stable across
// restarts so the reconciler can adopt workers it did not launch.
type Runtime interface {
	// Launch starts a worker and returns its handle. A worker already
	// occupying the agent's slot yields a conflict error.
	Launch(ctx context.Context, spec LaunchSpec) (string, error)

	// Terminate stops and removes a worker. Unknown handles are not an
	// error; the desired state is already true.
	Terminate(ctx context.Context, handle string, graceSeconds int) error

	// Inspect reports a worker's phase. found is false when the
	// runtime has no worker under the handle.
	Inspect(ctx context.Context, handle string) (phase Phase, found bool, err error)

	// ListAll enumerates every worker this orchestrator owns,
	// including stopped ones.
	ListAll(ctx context.Context) ([]WorkerInfo, error)

	// Ping verifies the runtime is reachable.
	Ping(ctx context.Context) error

	// Close releases runtime resources.
	Close() error
}

// HandleForAgent returns the deterministic worker handle for an agent.
func HandleForAgent(agentID string) string {
	return "agent-" + agentID
}
