// Package delivery provides the durable delivery queue that decouples
// message ingestion from worker dispatch. Jobs are enqueued by the
// message hub and consumed by the delivery worker process, which posts
// them to agent worker containers with bounded retries.
package delivery

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned when enqueueing on a closed queue.
var ErrQueueClosed = errors.New("delivery queue is closed")

// Kind discriminates the job payloads on the queue.
type Kind string

const (
	// KindDirectMessage delivers a DM to its recipient agent.
	KindDirectMessage Kind = "dm"
	// KindEvaluation asks an agent to consider responding to a
	// channel message.
	KindEvaluation Kind = "evaluate"
)

// DirectMessage is the payload of a DM delivery job.
type DirectMessage struct {
	Content        string `json:"content"`
	SenderType     string `json:"sender_type"`
	SenderID       string `json:"sender_id"`
	MessageID      string `json:"message_id"`
	ReplyChannelID string `json:"reply_channel_id"`
}

// Evaluation is the payload of an evaluation job.
type Evaluation struct {
	ChannelID            string `json:"channel_id"`
	MessageContent       string `json:"message_content"`
	MessageID            string `json:"message_id"`
	SenderUserIdentifier string `json:"sender_user_identifier"`
	IsDM                 bool   `json:"is_dm"`
}

// Job is the wire format of a queued delivery job.
type Job struct {
	Kind       Kind           `json:"kind"`
	AgentID    string         `json:"agent_id"`
	DM         *DirectMessage `json:"message,omitempty"`
	Evaluation *Evaluation    `json:"evaluation,omitempty"`
}

// Queue enqueues delivery jobs. Enqueueing is durable: once accepted,
// a job survives process restarts until a consumer acknowledges it.
type Queue interface {
	// DeliverDM enqueues a DM delivery for the recipient agent.
	DeliverDM(ctx context.Context, agentID string, msg DirectMessage) error

	// EvaluateMessage enqueues a channel-message evaluation for an agent.
	EvaluateMessage(ctx context.Context, agentID string, eval Evaluation) error

	// Close releases queue resources.
	Close()
}

// Dispatcher executes a dequeued job against the agent's worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *Job) error
}
