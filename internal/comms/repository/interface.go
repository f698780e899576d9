// Package repository provides storage for channels, membership,
// messages, and read cursors.
package repository

import (
	"context"
	"time"

	"github.com/botcrew/botcrew/internal/comms/models"
)

// Member identifies a channel participant: exactly one of AgentID /
// UserIdentifier is set.
type Member struct {
	AgentID        string
	UserIdentifier string
}

// IsAgent reports whether the member is an agent.
func (m Member) IsAgent() bool { return m.AgentID != "" }

// HistoryOptions controls a history page read. Limit is the raw row
// budget (page size + 1); Before is the exclusive cursor boundary, nil
// for the newest page.
type HistoryOptions struct {
	Limit      int
	BeforeTime time.Time
	BeforeID   string
}

// Repository defines communication storage operations.
type Repository interface {
	// CreateChannel inserts the channel and its initial members in one
	// transaction.
	CreateChannel(ctx context.Context, channel *models.Channel, members []*models.ChannelMember) error
	GetChannel(ctx context.Context, id string) (*models.Channel, error)
	UpdateChannel(ctx context.Context, channel *models.Channel) error
	DeleteChannel(ctx context.Context, id string) error
	// ListChannels optionally filters to channels the given member
	// belongs to.
	ListChannels(ctx context.Context, filter *Member) ([]*models.Channel, error)
	// FindDMChannel returns the dm channel whose member set is exactly
	// {agent, peer}, or a not-found error. The peer may be a human or
	// another agent.
	FindDMChannel(ctx context.Context, agentID string, peer Member) (*models.Channel, error)

	AddMember(ctx context.Context, member *models.ChannelMember) error
	RemoveMember(ctx context.Context, channelID string, member Member) error
	ListMembers(ctx context.Context, channelID string) ([]*models.ChannelMember, error)
	// ChannelAgentIDs returns only the agent members of a channel.
	ChannelAgentIDs(ctx context.Context, channelID string) ([]string, error)

	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// History returns messages newest-first per opts.
	History(ctx context.Context, channelID string, opts HistoryOptions) ([]*models.Message, error)
	// MessagesAfter returns messages with creation instant strictly
	// greater than after, oldest-first. A zero after means all
	// messages.
	MessagesAfter(ctx context.Context, channelID string, after time.Time) ([]*models.Message, error)
	// CountAfter counts messages with the MessagesAfter predicate.
	CountAfter(ctx context.Context, channelID string, after time.Time) (int, error)

	GetReadCursor(ctx context.Context, channelID string, member Member) (*models.ReadCursor, error)
	UpsertReadCursor(ctx context.Context, cursor *models.ReadCursor) error
}
