package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
)

// NATSBus implements Bus on NATS core pub/sub. It holds two
// connections: a shared publisher used by request handlers and the
// hub, and a subscriber opened lazily for the session listener so
// consuming frames never contends with publishing them.
type NATSBus struct {
	pub    *nats.Conn
	sub    *nats.Conn
	logger *logger.Logger
	config config.NATSConfig
}

// NewNATSBus connects the publisher side of the bus.
func NewNATSBus(cfg config.NATSConfig, log *logger.Logger) (*NATSBus, error) {
	b := &NATSBus{logger: log, config: cfg}

	pub, err := b.connect(cfg.ClientID + "-pub")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b.pub = pub

	log.Info("Connected to NATS", zap.String("url", cfg.URL))
	return b, nil
}

func (b *NATSBus) connect(name string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(b.config.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			b.logger.Error("NATS error", zap.Error(err), zap.String("subject", subject))
		}),
	}
	return nats.Connect(b.config.URL, opts...)
}

// PublishChannel sends a frame to the channel's subject.
func (b *NATSBus) PublishChannel(ctx context.Context, channelID string, payload []byte) error {
	subject := SubjectForChannel(channelID)
	if err := b.pub.Publish(subject, payload); err != nil {
		b.logger.Error("Failed to publish frame",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	return nil
}

// SubscribeChannels opens the dedicated subscriber connection and
// subscribes to the channel wildcard.
func (b *NATSBus) SubscribeChannels(handler Handler) (Subscription, error) {
	if b.sub == nil {
		conn, err := b.connect(b.config.ClientID + "-sub")
		if err != nil {
			return nil, fmt.Errorf("failed to connect subscriber: %w", err)
		}
		b.sub = conn
	}

	sub, err := b.sub.Subscribe(channelSubjectWildcard, func(msg *nats.Msg) {
		channelID, ok := ChannelFromSubject(msg.Subject)
		if !ok {
			b.logger.Warn("Frame on unexpected subject", zap.String("subject", msg.Subject))
			return
		}
		handler(channelID, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channelSubjectWildcard, err)
	}

	b.logger.Debug("Subscribed to channel subjects", zap.String("subject", channelSubjectWildcard))
	return &natsSubscription{sub: sub}, nil
}

// IsConnected reports publisher connectivity.
func (b *NATSBus) IsConnected() bool {
	return b.pub != nil && b.pub.IsConnected()
}

// Close drains both connections.
func (b *NATSBus) Close() {
	for _, conn := range []*nats.Conn{b.sub, b.pub} {
		if conn == nil {
			continue
		}
		if err := conn.Drain(); err != nil {
			b.logger.Warn("Error draining NATS connection", zap.Error(err))
			conn.Close()
		}
	}
	b.logger.Info("NATS bus closed")
}

// natsSubscription wraps a NATS subscription.
type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) IsValid() bool {
	return s.sub != nil && s.sub.IsValid()
}
