package session

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/bus"
	"github.com/botcrew/botcrew/internal/common/logger"
)

// Listener bridges bus channel topics to the session registry. One
// listener serves every channel through a wildcard subscription.
type Listener struct {
	bus      bus.Bus
	registry *Registry
	logger   *logger.Logger
	sub      bus.Subscription
}

// NewListener creates a listener; call Start to begin forwarding.
func NewListener(b bus.Bus, registry *Registry, log *logger.Logger) *Listener {
	return &Listener{bus: b, registry: registry, logger: log}
}

// Start subscribes to all channel topics and fans frames out to live
// sessions. Malformed payloads are dropped with a warning.
func (l *Listener) Start() error {
	sub, err := l.bus.SubscribeChannels(func(channelID string, payload []byte) {
		if !json.Valid(payload) {
			l.logger.Warn("Dropping malformed bus frame",
				zap.String("channel_id", channelID),
			)
			return
		}
		l.registry.Broadcast(channelID, payload)
	})
	if err != nil {
		return err
	}
	l.sub = sub
	l.logger.Info("Session listener started")
	return nil
}

// Stop unsubscribes and closes every live session.
func (l *Listener) Stop() {
	if l.sub != nil {
		if err := l.sub.Unsubscribe(); err != nil {
			l.logger.WithError(err).Warn("Failed to unsubscribe session listener")
		}
	}
	l.registry.CloseAll()
}
