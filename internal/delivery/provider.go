package delivery

import (
	"fmt"
	"strings"

	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
)

// Provide builds the configured queue implementation. With a NATS URL
// jobs go to JetStream and are consumed by delivery worker processes;
// without one they are dispatched in process.
func Provide(cfg *config.Config, dispatcher Dispatcher, log *logger.Logger) (Queue, func(), error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		q, err := NewJetStreamQueue(cfg.NATS, cfg.Delivery, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize delivery queue: %w", err)
		}
		return q, q.Close, nil
	}

	q := NewMemoryQueue(dispatcher, log)
	return q, q.Close, nil
}
