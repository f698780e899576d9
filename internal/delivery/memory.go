package delivery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/logger"
)

// MemoryQueue implements Queue in process. With a dispatcher attached
// it executes jobs on goroutines as they arrive (single-process
// deployments without NATS); without one it records jobs for tests.
type MemoryQueue struct {
	mu         sync.Mutex
	jobs       []*Job
	dispatcher Dispatcher
	logger     *logger.Logger
	closed     bool
}

// NewMemoryQueue creates an in-process queue. dispatcher may be nil.
func NewMemoryQueue(dispatcher Dispatcher, log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{dispatcher: dispatcher, logger: log}
}

// DeliverDM records or dispatches a DM job.
func (q *MemoryQueue) DeliverDM(ctx context.Context, agentID string, msg DirectMessage) error {
	return q.enqueue(&Job{Kind: KindDirectMessage, AgentID: agentID, DM: &msg})
}

// EvaluateMessage records or dispatches an evaluation job.
func (q *MemoryQueue) EvaluateMessage(ctx context.Context, agentID string, eval Evaluation) error {
	return q.enqueue(&Job{Kind: KindEvaluation, AgentID: agentID, Evaluation: &eval})
}

func (q *MemoryQueue) enqueue(job *Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.jobs = append(q.jobs, job)
	dispatcher := q.dispatcher
	q.mu.Unlock()

	if dispatcher != nil {
		go func() {
			if err := dispatcher.Dispatch(context.Background(), job); err != nil {
				q.logger.Warn("In-process delivery failed",
					zap.String("kind", string(job.Kind)),
					zap.String("agent_id", job.AgentID),
					zap.Error(err),
				)
			}
		}()
	}
	return nil
}

// Jobs returns a snapshot of all enqueued jobs.
func (q *MemoryQueue) Jobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Job(nil), q.jobs...)
}

// Reset discards recorded jobs.
func (q *MemoryQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = nil
}

// Close marks the queue closed.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
