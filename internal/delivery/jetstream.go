package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
)

// JetStreamQueue implements Queue on a JetStream work queue stream.
// The stream is created on first use; publishes are synchronous so an
// accepted enqueue is durable.
type JetStreamQueue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
	logger  *logger.Logger
}

// NewJetStreamQueue connects to NATS and ensures the delivery stream
// exists.
func NewJetStreamQueue(natsCfg config.NATSConfig, cfg config.DeliveryConfig, log *logger.Logger) (*JetStreamQueue, error) {
	conn, err := nats.Connect(natsCfg.URL,
		nats.Name(natsCfg.ClientID+"-delivery"),
		nats.MaxReconnects(natsCfg.MaxReconnects),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	if err := ensureStream(js, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("Delivery queue ready",
		zap.String("stream", cfg.Stream),
		zap.String("subject", cfg.Subject),
	)
	return &JetStreamQueue{conn: conn, js: js, subject: cfg.Subject, logger: log}, nil
}

func ensureStream(js nats.JetStreamContext, cfg config.DeliveryConfig) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", cfg.Stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}
	return nil
}

// DeliverDM enqueues a DM delivery job.
func (q *JetStreamQueue) DeliverDM(ctx context.Context, agentID string, msg DirectMessage) error {
	return q.publish(ctx, &Job{Kind: KindDirectMessage, AgentID: agentID, DM: &msg})
}

// EvaluateMessage enqueues an evaluation job.
func (q *JetStreamQueue) EvaluateMessage(ctx context.Context, agentID string, eval Evaluation) error {
	return q.publish(ctx, &Job{Kind: KindEvaluation, AgentID: agentID, Evaluation: &eval})
}

func (q *JetStreamQueue) publish(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery job: %w", err)
	}

	if _, err := q.js.Publish(q.subject, data, nats.Context(ctx)); err != nil {
		q.logger.Error("Failed to enqueue delivery job",
			zap.String("kind", string(job.Kind)),
			zap.String("agent_id", job.AgentID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to enqueue delivery job: %w", err)
	}

	q.logger.Debug("Enqueued delivery job",
		zap.String("kind", string(job.Kind)),
		zap.String("agent_id", job.AgentID),
	)
	return nil
}

// Conn exposes the underlying connection for the consumer side.
func (q *JetStreamQueue) Conn() *nats.Conn { return q.conn }

// JetStream exposes the JetStream context for the consumer side.
func (q *JetStreamQueue) JetStream() nats.JetStreamContext { return q.js }

// Close drains the connection.
func (q *JetStreamQueue) Close() {
	if q.conn == nil {
		return
	}
	if err := q.conn.Drain(); err != nil {
		q.logger.Warn("Error draining delivery queue connection", zap.Error(err))
		q.conn.Close()
	}
}
