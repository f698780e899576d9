package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
)

const (
	// maxDeliver bounds attempts per job: one initial plus three retries.
	maxDeliver = 4
	// ackWait must exceed the longest dispatch (the 120s evaluate call).
	ackWait = 130 * time.Second
)

// redeliveryBackoff spaces the three retries.
var redeliveryBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// Worker consumes the delivery stream and dispatches jobs to agent
// workers. Multiple Worker processes share the durable consumer, so
// each job is handled once.
type Worker struct {
	js         nats.JetStreamContext
	cfg        config.DeliveryConfig
	dispatcher Dispatcher
	logger     *logger.Logger
	subs       []*nats.Subscription
}

// NewWorker creates a delivery worker over an existing JetStream
// context.
func NewWorker(js nats.JetStreamContext, cfg config.DeliveryConfig, dispatcher Dispatcher, log *logger.Logger) *Worker {
	return &Worker{js: js, cfg: cfg, dispatcher: dispatcher, logger: log}
}

// Start subscribes the configured number of concurrent consumers.
func (w *Worker) Start(ctx context.Context) error {
	for i := 0; i < w.cfg.Workers; i++ {
		sub, err := w.js.QueueSubscribe(
			w.cfg.Subject,
			w.cfg.Consumer,
			w.handle,
			nats.Durable(w.cfg.Consumer),
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.AckWait(ackWait),
			nats.MaxDeliver(maxDeliver),
			nats.BackOff(redeliveryBackoff),
			nats.DeliverAll(),
		)
		if err != nil {
			w.Stop()
			return fmt.Errorf("failed to subscribe delivery consumer: %w", err)
		}
		w.subs = append(w.subs, sub)
	}

	w.logger.Info("Delivery worker started",
		zap.String("stream", w.cfg.Stream),
		zap.String("consumer", w.cfg.Consumer),
		zap.Int("concurrency", w.cfg.Workers),
	)
	return nil
}

// handle processes one job. Failures are not acked; the server
// redelivers on the backoff schedule until maxDeliver is exhausted.
func (w *Worker) handle(msg *nats.Msg) {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		w.logger.Error("Dropping malformed delivery job", zap.Error(err))
		_ = msg.Term()
		return
	}

	attempt := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		attempt = meta.NumDelivered
	}

	log := w.logger.WithFields(
		zap.String("kind", string(job.Kind)),
		zap.String("agent_id", job.AgentID),
		zap.Uint64("attempt", attempt),
	)

	if err := w.dispatcher.Dispatch(context.Background(), &job); err != nil {
		if attempt >= maxDeliver {
			log.Error("Delivery job failed permanently", zap.Error(err))
			_ = msg.Term()
			return
		}
		log.Warn("Delivery job failed, will retry", zap.Error(err))
		return
	}

	if err := msg.Ack(); err != nil {
		log.Warn("Failed to ack delivery job", zap.Error(err))
		return
	}
	log.Debug("Delivery job done")
}

// Stop drains all subscriptions.
func (w *Worker) Stop() {
	for _, sub := range w.subs {
		if err := sub.Drain(); err != nil {
			w.logger.Warn("Error draining delivery subscription", zap.Error(err))
		}
	}
	w.subs = nil
}
