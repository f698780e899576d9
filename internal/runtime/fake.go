package runtime

import (
	"context"
	"sync"

	"github.com/botcrew/botcrew/internal/common/apperr"
)

// FakeRuntime is an in-memory Runtime for tests. Launched workers
// start in PhasePending; tests move them with SetPhase.
type FakeRuntime struct {
	mu      sync.Mutex
	workers map[string]*WorkerInfo

	// LaunchErr, when set, is returned by Launch.
	LaunchErr error
	// Launches counts Launch calls.
	Launches int
	// Terminations records terminated handles in order.
	Terminations []string
}

// NewFakeRuntime creates an empty fake runtime.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{workers: make(map[string]*WorkerInfo)}
}

// Launch registers a pending worker for the agent.
func (f *FakeRuntime) Launch(ctx context.Context, spec LaunchSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Launches++
	if f.LaunchErr != nil {
		return "", f.LaunchErr
	}

	handle := HandleForAgent(spec.AgentID)
	if _, exists := f.workers[handle]; exists {
		return "", apperr.Conflict("worker %s already exists", handle)
	}
	f.workers[handle] = &WorkerInfo{Handle: handle, AgentID: spec.AgentID, Phase: PhasePending}
	return handle, nil
}

// Terminate removes a worker; unknown handles succeed.
func (f *FakeRuntime) Terminate(ctx context.Context, handle string, graceSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.workers, handle)
	f.Terminations = append(f.Terminations, handle)
	return nil
}

// Inspect reports the worker's phase.
func (f *FakeRuntime) Inspect(ctx context.Context, handle string) (Phase, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.workers[handle]
	if !ok {
		return "", false, nil
	}
	return w.Phase, true, nil
}

// ListAll returns all registered workers.
func (f *FakeRuntime) ListAll(ctx context.Context) ([]WorkerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	infos := make([]WorkerInfo, 0, len(f.workers))
	for _, w := range f.workers {
		infos = append(infos, *w)
	}
	return infos, nil
}

// SetPhase moves a worker to the given phase.
func (f *FakeRuntime) SetPhase(handle string, phase Phase) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if w, ok := f.workers[handle]; ok {
		w.Phase = phase
	}
}

// AddWorker registers a worker directly, bypassing Launch. Used to
// simulate workers that survived an orchestrator restart.
func (f *FakeRuntime) AddWorker(agentID string, phase Phase) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	handle := HandleForAgent(agentID)
	f.workers[handle] = &WorkerInfo{Handle: handle, AgentID: agentID, Phase: phase}
	return handle
}

// Ping always succeeds.
func (f *FakeRuntime) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (f *FakeRuntime) Close() error { return nil }
