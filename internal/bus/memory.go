package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/botcrew/botcrew/internal/common/logger"
)

// MemoryBus implements Bus in process. Used when no NATS URL is
// configured (single-process deployments) and in tests.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   []*memorySubscription
	closed bool
	logger *logger.Logger
}

type memorySubscription struct {
	bus     *MemoryBus
	handler Handler
	mu      sync.Mutex
	active  bool
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{logger: log}
}

// PublishChannel delivers the frame to every active subscriber.
// Handlers run on their own goroutines, matching the NATS dispatch
// model.
func (b *MemoryBus) PublishChannel(ctx context.Context, channelID string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	for _, sub := range b.subs {
		sub.mu.Lock()
		active := sub.active
		sub.mu.Unlock()
		if !active {
			continue
		}
		go sub.handler(channelID, payload)
	}
	return nil
}

// SubscribeChannels registers a handler for every channel frame.
func (b *MemoryBus) SubscribeChannels(handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	sub := &memorySubscription{bus: b, handler: handler, active: true}
	b.subs = append(b.subs, sub)
	return sub, nil
}

// IsConnected reports whether the bus is open.
func (b *MemoryBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close deactivates all subscriptions.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, sub := range b.subs {
		sub.mu.Lock()
		sub.active = false
		sub.mu.Unlock()
	}
	b.subs = nil
}

func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for i, sub := range s.bus.subs {
		if sub == s {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
