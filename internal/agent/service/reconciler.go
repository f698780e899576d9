package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/agent/repository"
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/runtime"
)

const (
	// pendingTimeout bounds how long a running agent's worker may sit
	// in the pending phase before it is reclaimed.
	pendingTimeout = 180 * time.Second

	// Recovery retries immediately this many times, then backs off
	// exponentially from backoffBase up to backoffCap.
	immediateRetries = 5
	backoffBase      = 10 * time.Second
	backoffCap       = 600 * time.Second
)

// failureState is the reconciler's in-memory recovery bookkeeping for
// one agent. It is intentionally not persisted: a restart resets the
// backoff, which only makes recovery more eager.
type failureState struct {
	count       int
	lastAttempt time.Time
}

// Reconciler converges stored agent state with the worker runtime on a
// fixed tick. It is the only component that writes status based on
// observed runtime state.
type Reconciler struct {
	repo    repository.Repository
	runtime runtime.Runtime
	logger  *logger.Logger
	period  time.Duration

	mu           sync.Mutex
	failures     map[string]*failureState
	pendingSince map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconciler creates a reconciler.
func NewReconciler(repo repository.Repository, rt runtime.Runtime, cfg config.AgentConfig, log *logger.Logger) *Reconciler {
	return &Reconciler{
		repo:         repo,
		runtime:      rt,
		logger:       log,
		period:       cfg.ReconcileInterval(),
		failures:     make(map[string]*failureState),
		pendingSince: make(map[string]time.Time),
	}
}

// Start runs the loop in the background until Stop.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.period)
		defer ticker.Stop()

		r.logger.Info("Reconciler started", zap.Duration("period", r.period))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick.
func (r *Reconciler) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.logger.Info("Reconciler stopped")
}

// Tick runs one reconciliation pass. It never panics out: a failure
// on one agent is logged and the rest of the pass continues.
func (r *Reconciler) Tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Reconciler tick panicked", zap.Any("panic", rec))
		}
	}()

	agents, err := r.repo.ListByStatuses(ctx, []models.Status{
		models.StatusRunning, models.StatusError, models.StatusRecovering,
	})
	if err != nil {
		r.logger.WithError(err).Warn("Reconciler failed to list agents")
		return
	}
	if len(agents) == 0 {
		return
	}

	workers, err := r.runtime.ListAll(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Reconciler failed to enumerate workers")
		return
	}
	phases := make(map[string]runtime.Phase, len(workers))
	for _, w := range workers {
		phases[w.Handle] = w.Phase
	}

	for _, agent := range agents {
		if err := r.reconcileOne(ctx, agent, phases); err != nil {
			r.logger.WithError(err).WithAgentID(agent.ID).Warn("Reconciliation failed for agent")
		}
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, agent *models.Agent, phases map[string]runtime.Phase) error {
	phase, found := phases[agent.WorkerHandle]
	if agent.WorkerHandle == "" {
		found = false
	}

	switch agent.Status {
	case models.StatusRunning:
		return r.reconcileRunning(ctx, agent, phase, found)
	case models.StatusError, models.StatusRecovering:
		if found && phase == runtime.PhaseFailed {
			// Clear the failed worker so the next pass can relaunch.
			return r.runtime.Terminate(ctx, agent.WorkerHandle, 0)
		}
		if !found {
			return r.recover(ctx, agent)
		}
	}
	return nil
}

func (r *Reconciler) reconcileRunning(ctx context.Context, agent *models.Agent, phase runtime.Phase, found bool) error {
	switch {
	case !found:
		r.logger.WithAgentID(agent.ID).Warn("Worker missing for running agent")
		r.clearPending(agent.ID)
		return r.repo.UpdateStatus(ctx, agent.ID, models.StatusError, nil)

	case phase == runtime.PhaseFailed:
		r.logger.WithAgentID(agent.ID).Warn("Worker failed for running agent")
		r.clearPending(agent.ID)
		if err := r.runtime.Terminate(ctx, agent.WorkerHandle, 0); err != nil {
			r.logger.WithError(err).WithAgentID(agent.ID).Warn("Failed to terminate failed worker")
		}
		return r.repo.UpdateStatus(ctx, agent.ID, models.StatusError, nil)

	case phase == runtime.PhasePending:
		r.mu.Lock()
		since, tracked := r.pendingSince[agent.ID]
		if !tracked {
			since = time.Now()
			r.pendingSince[agent.ID] = since
		}
		r.mu.Unlock()
		if time.Since(since) <= pendingTimeout {
			return nil
		}
		r.logger.WithAgentID(agent.ID).Warn("Worker pending past deadline; reclaiming")
		r.clearPending(agent.ID)
		if err := r.runtime.Terminate(ctx, agent.WorkerHandle, 0); err != nil {
			r.logger.WithError(err).WithAgentID(agent.ID).Warn("Failed to terminate pending worker")
		}
		return r.repo.UpdateStatus(ctx, agent.ID, models.StatusError, nil)

	default:
		// Worker healthy; reset recovery bookkeeping.
		r.clearPending(agent.ID)
		r.mu.Lock()
		delete(r.failures, agent.ID)
		r.mu.Unlock()
		return nil
	}
}

// recover relaunches an agent's worker, backing off after repeated
// failures.
func (r *Reconciler) recover(ctx context.Context, agent *models.Agent) error {
	r.mu.Lock()
	f := r.failures[agent.ID]
	if f == nil {
		f = &failureState{}
		r.failures[agent.ID] = f
	}
	count, lastAttempt := f.count, f.lastAttempt
	r.mu.Unlock()

	if count >= immediateRetries {
		backoff := recoveryBackoff(count)
		if time.Since(lastAttempt) < backoff {
			return nil
		}
	}

	if err := r.repo.UpdateStatus(ctx, agent.ID, models.StatusRecovering, nil); err != nil {
		return err
	}

	// Fresh snapshot: the agent may have been deleted or mutated since
	// the pass started.
	fresh, err := r.repo.Get(ctx, agent.ID)
	if err != nil {
		if apperr.IsNotFound(err) {
			r.forget(agent.ID)
			return nil
		}
		return err
	}

	handle, err := r.runtime.Launch(ctx, launchSpec(fresh.ID))
	if err != nil {
		r.mu.Lock()
		f.count++
		f.lastAttempt = time.Now()
		attempts := f.count
		r.mu.Unlock()
		r.logger.WithError(err).WithAgentID(agent.ID).Warn("Recovery launch failed",
			zap.Int("failure_count", attempts),
		)
		return r.repo.UpdateStatus(ctx, agent.ID, models.StatusError, nil)
	}

	if err := r.repo.UpdateStatus(ctx, agent.ID, models.StatusRunning, &handle); err != nil {
		return err
	}
	r.forget(agent.ID)
	r.logger.WithAgentID(agent.ID).Info("Agent recovered", zap.String("handle", handle))
	return nil
}

func (r *Reconciler) clearPending(agentID string) {
	r.mu.Lock()
	delete(r.pendingSince, agentID)
	r.mu.Unlock()
}

func (r *Reconciler) forget(agentID string) {
	r.mu.Lock()
	delete(r.failures, agentID)
	delete(r.pendingSince, agentID)
	r.mu.Unlock()
}

// recoveryBackoff computes the wait after count consecutive failures:
// backoffBase doubling per failure past the immediate retries, capped
// at backoffCap.
func recoveryBackoff(count int) time.Duration {
	backoff := backoffBase
	for i := immediateRetries; i < count; i++ {
		backoff *= 2
		if backoff >= backoffCap {
			return backoffCap
		}
	}
	return backoff
}
