// Package bus provides the channel fan-out bus that carries realtime
// frames from the orchestrator to every process holding WebSocket
// sessions. Each communication channel maps to one subject; the
// session listener subscribes to the wildcard covering all of them.
package bus

import (
	"context"
	"strings"
)

const (
	// channelSubjectPrefix is the subject namespace for channel frames.
	channelSubjectPrefix = "ws.channel."

	// channelSubjectWildcard matches every channel subject.
	channelSubjectWildcard = "ws.channel.>"
)

// SubjectForChannel returns the bus subject carrying frames for a channel.
func SubjectForChannel(channelID string) string {
	return channelSubjectPrefix + channelID
}

// ChannelFromSubject extracts the channel id from a channel subject.
// The second return is false for subjects outside the channel namespace.
func ChannelFromSubject(subject string) (string, bool) {
	if !strings.HasPrefix(subject, channelSubjectPrefix) {
		return "", false
	}
	id := subject[len(channelSubjectPrefix):]
	if id == "" {
		return "", false
	}
	return id, true
}

// Handler receives a raw frame published to a channel subject.
type Handler func(channelID string, payload []byte)

// Subscription represents an active wildcard subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// Bus publishes frames to channel subjects and lets the session
// listener subscribe to all of them. Publish never blocks on slow
// consumers; delivery to sessions is best effort.
type Bus interface {
	// PublishChannel sends a frame to every subscriber of the channel.
	PublishChannel(ctx context.Context, channelID string, payload []byte) error

	// SubscribeChannels delivers every channel frame to handler. The
	// subscription runs on a connection dedicated to consuming so a
	// burst of publishes cannot starve it.
	SubscribeChannels(handler Handler) (Subscription, error)

	// IsConnected reports whether the bus can accept publishes.
	IsConnected() bool

	// Close releases all connections.
	Close()
}
