package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/comms/models"
)

// MemoryRepository implements Repository in memory for tests and
// single-process development.
type MemoryRepository struct {
	mu       sync.RWMutex
	channels map[string]*models.Channel
	members  map[string][]*models.ChannelMember // channel_id -> members
	messages map[string][]*models.Message       // channel_id -> messages
	byID     map[string]*models.Message
	cursors  map[string]*models.ReadCursor // cursorKey -> cursor
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		channels: make(map[string]*models.Channel),
		members:  make(map[string][]*models.ChannelMember),
		messages: make(map[string][]*models.Message),
		byID:     make(map[string]*models.Message),
		cursors:  make(map[string]*models.ReadCursor),
	}
}

func cursorKey(channelID string, m Member) string {
	if m.IsAgent() {
		return channelID + "/agent/" + m.AgentID
	}
	return channelID + "/user/" + m.UserIdentifier
}

// CreateChannel inserts the channel and members; a duplicate member in
// the initial set fails the whole create.
func (r *MemoryRepository) CreateChannel(ctx context.Context, channel *models.Channel, members []*models.ChannelMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *channel
	r.channels[channel.ID] = &cp
	for _, m := range members {
		if err := r.addMemberLocked(m); err != nil {
			delete(r.channels, channel.ID)
			delete(r.members, channel.ID)
			return err
		}
	}
	return nil
}

func (r *MemoryRepository) addMemberLocked(m *models.ChannelMember) error {
	for _, existing := range r.members[m.ChannelID] {
		if m.AgentID != "" && existing.AgentID == m.AgentID {
			return apperr.Conflict("member already in channel %s", m.ChannelID)
		}
		if m.UserIdentifier != "" && existing.UserIdentifier == m.UserIdentifier {
			return apperr.Conflict("member already in channel %s", m.ChannelID)
		}
	}
	cp := *m
	r.members[m.ChannelID] = append(r.members[m.ChannelID], &cp)
	return nil
}

// GetChannel fetches a channel by id.
func (r *MemoryRepository) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[id]
	if !ok {
		return nil, apperr.NotFound("channel %s not found", id)
	}
	cp := *ch
	return &cp, nil
}

// UpdateChannel writes name and description.
func (r *MemoryRepository) UpdateChannel(ctx context.Context, channel *models.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.channels[channel.ID]
	if !ok {
		return apperr.NotFound("channel %s not found", channel.ID)
	}
	existing.Name = channel.Name
	existing.Description = channel.Description
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteChannel removes the channel and everything under it.
func (r *MemoryRepository) DeleteChannel(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[id]; !ok {
		return apperr.NotFound("channel %s not found", id)
	}
	delete(r.channels, id)
	delete(r.members, id)
	for _, m := range r.messages[id] {
		delete(r.byID, m.ID)
	}
	delete(r.messages, id)
	for key, c := range r.cursors {
		if c.ChannelID == id {
			delete(r.cursors, key)
		}
	}
	return nil
}

// ListChannels returns channels, optionally those the member is in.
func (r *MemoryRepository) ListChannels(ctx context.Context, filter *Member) ([]*models.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var channels []*models.Channel
	for id, ch := range r.channels {
		if filter != nil && !r.isMemberLocked(id, *filter) {
			continue
		}
		cp := *ch
		channels = append(channels, &cp)
	}
	sort.Slice(channels, func(i, j int) bool {
		if !channels[i].CreatedAt.Equal(channels[j].CreatedAt) {
			return channels[i].CreatedAt.Before(channels[j].CreatedAt)
		}
		return channels[i].ID < channels[j].ID
	})
	return channels, nil
}

func (r *MemoryRepository) isMemberLocked(channelID string, m Member) bool {
	for _, existing := range r.members[channelID] {
		if m.IsAgent() && existing.AgentID == m.AgentID {
			return true
		}
		if !m.IsAgent() && existing.UserIdentifier == m.UserIdentifier {
			return true
		}
	}
	return false
}

// FindDMChannel returns the dm channel with exactly {agent, peer}.
func (r *MemoryRepository) FindDMChannel(ctx context.Context, agentID string, peer Member) (*models.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, ch := range r.channels {
		if ch.Type != models.ChannelTypeDM {
			continue
		}
		members := r.members[id]
		if len(members) != 2 {
			continue
		}
		if !r.isMemberLocked(id, Member{AgentID: agentID}) {
			continue
		}
		peerOK := false
		for _, m := range members {
			if peer.IsAgent() {
				if m.AgentID == peer.AgentID && m.AgentID != agentID {
					peerOK = true
				}
			} else if m.UserIdentifier == peer.UserIdentifier {
				peerOK = true
			}
		}
		if peerOK {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("no dm channel for agent %s", agentID)
}

// AddMember inserts a membership; duplicates conflict.
func (r *MemoryRepository) AddMember(ctx context.Context, member *models.ChannelMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[member.ChannelID]; !ok {
		return apperr.NotFound("channel %s not found", member.ChannelID)
	}
	return r.addMemberLocked(member)
}

// RemoveMember deletes a membership.
func (r *MemoryRepository) RemoveMember(ctx context.Context, channelID string, member Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.members[channelID]
	for i, existing := range members {
		match := (member.IsAgent() && existing.AgentID == member.AgentID) ||
			(!member.IsAgent() && existing.UserIdentifier == member.UserIdentifier)
		if match {
			r.members[channelID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("member not in channel %s", channelID)
}

// ListMembers returns all members of a channel.
func (r *MemoryRepository) ListMembers(ctx context.Context, channelID string) ([]*models.ChannelMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []*models.ChannelMember
	for _, m := range r.members[channelID] {
		cp := *m
		members = append(members, &cp)
	}
	return members, nil
}

// ChannelAgentIDs returns only agent members.
func (r *MemoryRepository) ChannelAgentIDs(ctx context.Context, channelID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, m := range r.members[channelID] {
		if m.AgentID != "" {
			ids = append(ids, m.AgentID)
		}
	}
	return ids, nil
}

// CreateMessage appends a message.
func (r *MemoryRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *msg
	r.messages[msg.ChannelID] = append(r.messages[msg.ChannelID], &cp)
	r.byID[msg.ID] = &cp
	return nil
}

// GetMessage fetches a message by id.
func (r *MemoryRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("message %s not found", id)
	}
	cp := *m
	return &cp, nil
}

// messageBefore orders messages by (created_at, id) ascending.
func messageBefore(a, b *models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// History returns messages newest-first, strictly older than the
// cursor boundary.
func (r *MemoryRepository) History(ctx context.Context, channelID string, opts HistoryOptions) ([]*models.Message, error) {
	r.mu.RLock()
	msgs := make([]*models.Message, 0, len(r.messages[channelID]))
	for _, m := range r.messages[channelID] {
		cp := *m
		msgs = append(msgs, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool { return messageBefore(msgs[j], msgs[i]) })

	if !opts.BeforeTime.IsZero() {
		boundary := &models.Message{CreatedAt: opts.BeforeTime, ID: opts.BeforeID}
		filtered := msgs[:0]
		for _, m := range msgs {
			if messageBefore(m, boundary) {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	if opts.Limit > 0 && len(msgs) > opts.Limit {
		msgs = msgs[:opts.Limit]
	}
	return msgs, nil
}

// MessagesAfter returns messages newer than after, oldest-first.
func (r *MemoryRepository) MessagesAfter(ctx context.Context, channelID string, after time.Time) ([]*models.Message, error) {
	r.mu.RLock()
	var msgs []*models.Message
	for _, m := range r.messages[channelID] {
		if after.IsZero() || m.CreatedAt.After(after) {
			cp := *m
			msgs = append(msgs, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool { return messageBefore(msgs[i], msgs[j]) })
	return msgs, nil
}

// CountAfter counts messages newer than after.
func (r *MemoryRepository) CountAfter(ctx context.Context, channelID string, after time.Time) (int, error) {
	msgs, err := r.MessagesAfter(ctx, channelID, after)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// GetReadCursor fetches a member's cursor.
func (r *MemoryRepository) GetReadCursor(ctx context.Context, channelID string, member Member) (*models.ReadCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cursors[cursorKey(channelID, member)]
	if !ok {
		return nil, apperr.NotFound("no read cursor in channel %s", channelID)
	}
	cp := *c
	return &cp, nil
}

// UpsertReadCursor writes the cursor. A write pointing at an older
// position than the stored row is a no-op, matching the guarded
// postgres upsert.
func (r *MemoryRepository) UpsertReadCursor(ctx context.Context, cursor *models.ReadCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cursorKey(cursor.ChannelID, Member{AgentID: cursor.AgentID, UserIdentifier: cursor.UserIdentifier})
	if prev, ok := r.cursors[key]; ok && !positionBefore(prev, cursor) {
		return nil
	}
	cursor.UpdatedAt = time.Now().UTC()
	cp := *cursor
	r.cursors[key] = &cp
	return nil
}

// positionBefore reports whether prev points at a strictly older
// position than next, comparing (last_read_at, last_read_message_id).
func positionBefore(prev, next *models.ReadCursor) bool {
	if !prev.LastReadAt.Equal(next.LastReadAt) {
		return prev.LastReadAt.Before(next.LastReadAt)
	}
	return prev.LastReadMessageID < next.LastReadMessageID
}
