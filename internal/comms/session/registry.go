// Package session manages live websocket sessions: a sharded registry
// keyed by channel, read/write pumps per connection, and the bus
// listener that fans frames out to them.
package session

import (
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/logger"
)

const registryShards = 16

type shard struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Session // channel_id -> client_id -> session
}

// Registry tracks live sessions per channel. Broadcast never blocks on
// a slow session: a session whose buffer is full is marked dead and
// evicted.
type Registry struct {
	shards [registryShards]*shard
	logger *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	r := &Registry{logger: log}
	for i := range r.shards {
		r.shards[i] = &shard{channels: make(map[string]map[string]*Session)}
	}
	return r
}

func (r *Registry) shardFor(channelID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(channelID))
	return r.shards[h.Sum32()%registryShards]
}

// Add registers a session. A second session with the same client id on
// the same channel replaces the first, which is closed.
func (r *Registry) Add(s *Session) {
	sh := r.shardFor(s.ChannelID)
	sh.mu.Lock()
	clients, ok := sh.channels[s.ChannelID]
	if !ok {
		clients = make(map[string]*Session)
		sh.channels[s.ChannelID] = clients
	}
	prev := clients[s.ClientID]
	clients[s.ClientID] = s
	sh.mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

// Remove unregisters a session. It is a no-op if the registered
// session for the client id is a different one (already replaced).
func (r *Registry) Remove(s *Session) {
	sh := r.shardFor(s.ChannelID)
	sh.mu.Lock()
	if clients, ok := sh.channels[s.ChannelID]; ok && clients[s.ClientID] == s {
		delete(clients, s.ClientID)
		if len(clients) == 0 {
			delete(sh.channels, s.ChannelID)
		}
	}
	sh.mu.Unlock()
}

// Count returns the number of live sessions on a channel.
func (r *Registry) Count(channelID string) int {
	sh := r.shardFor(channelID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.channels[channelID])
}

// Broadcast writes the payload to every session on the channel.
// Sessions that cannot accept the frame are evicted and closed.
func (r *Registry) Broadcast(channelID string, payload []byte) {
	sh := r.shardFor(channelID)

	sh.mu.RLock()
	sessions := make([]*Session, 0, len(sh.channels[channelID]))
	for _, s := range sh.channels[channelID] {
		sessions = append(sessions, s)
	}
	sh.mu.RUnlock()

	var dead []*Session
	for _, s := range sessions {
		if !s.trySend(payload) {
			dead = append(dead, s)
		}
	}
	for _, s := range dead {
		r.logger.Warn("Evicting unresponsive session",
			zap.String("channel_id", s.ChannelID),
			zap.String("client_id", s.ClientID),
		)
		r.Remove(s)
		s.close()
	}
}

// CloseAll closes every session, for shutdown.
func (r *Registry) CloseAll() {
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, clients := range sh.channels {
			for _, s := range clients {
				s.close()
			}
		}
		sh.channels = make(map[string]map[string]*Session)
		sh.mu.Unlock()
	}
}
