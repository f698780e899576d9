// Package service implements the communication services: message
// persistence and history, channel management, and the hub that routes
// every message.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/common/pagination"
	"github.com/botcrew/botcrew/internal/comms/models"
	"github.com/botcrew/botcrew/internal/comms/repository"
)

// Message history page bounds.
const (
	DefaultHistoryPageSize = 50
	MaxHistoryPageSize     = 200
)

// CreateMessageInput describes a message to persist.
type CreateMessageInput struct {
	ChannelID string
	Content   string
	Type      models.MessageType
	// At most one of SenderAgentID / SenderUserID; both empty only for
	// system messages.
	SenderAgentID string
	SenderUserID  string
	Metadata      map[string]any
}

// HistoryPage is one page of channel history, newest-first.
type HistoryPage struct {
	Messages   []*models.Message
	HasNext    bool
	NextCursor string
}

// MessageService persists messages and maintains read cursors.
type MessageService struct {
	repo   repository.Repository
	logger *logger.Logger
}

// NewMessageService creates a message service.
func NewMessageService(repo repository.Repository, log *logger.Logger) *MessageService {
	return &MessageService{repo: repo, logger: log}
}

// Create validates the sender variant and persists the message.
func (s *MessageService) Create(ctx context.Context, in CreateMessageInput) (*models.Message, error) {
	if in.Content == "" {
		return nil, apperr.ValidationField("content", "content must not be empty")
	}
	if !models.ValidMessageType(in.Type) {
		return nil, apperr.ValidationField("type", "invalid message type %q", in.Type)
	}
	if in.SenderAgentID != "" && in.SenderUserID != "" {
		return nil, apperr.Validation("message sender must be an agent or a human, not both")
	}
	if in.SenderAgentID == "" && in.SenderUserID == "" && in.Type != models.MessageTypeSystem {
		return nil, apperr.Validation("non-system messages require a sender")
	}

	msg := &models.Message{
		ID:            uuid.New().String(),
		ChannelID:     in.ChannelID,
		SenderAgentID: in.SenderAgentID,
		SenderUserID:  in.SenderUserID,
		Content:       in.Content,
		Type:          in.Type,
		Metadata:      in.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History returns one page of channel history, newest-first. The
// cursor is opaque; an empty cursor starts at the newest message.
func (s *MessageService) History(ctx context.Context, channelID string, pageSize int, cursor string) (*HistoryPage, error) {
	if pageSize == 0 {
		pageSize = DefaultHistoryPageSize
	}
	if pageSize < 1 || pageSize > MaxHistoryPageSize {
		return nil, apperr.ValidationField("page_size", "page_size must be between 1 and %d", MaxHistoryPageSize)
	}

	opts := repository.HistoryOptions{Limit: pageSize + 1}
	if cursor != "" {
		beforeTime, beforeID, err := pagination.DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		opts.BeforeTime = beforeTime
		opts.BeforeID = beforeID
	}

	msgs, err := s.repo.History(ctx, channelID, opts)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Messages: msgs}
	if len(msgs) > pageSize {
		page.Messages = msgs[:pageSize]
		page.HasNext = true
		oldest := page.Messages[len(page.Messages)-1]
		page.NextCursor = pagination.EncodeCursor(oldest.CreatedAt, oldest.ID)
	}
	return page, nil
}

// UpdateReadCursor advances a member's cursor to the given message.
// The cursor never regresses: pointing it at an older message keeps
// the newer position.
func (s *MessageService) UpdateReadCursor(ctx context.Context, channelID, messageID string, member repository.Member) (*models.ReadCursor, error) {
	if err := validateMember(member); err != nil {
		return nil, err
	}

	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ChannelID != channelID {
		return nil, apperr.ValidationField("message_id", "message %s is not in channel %s", messageID, channelID)
	}

	existing, err := s.repo.GetReadCursor(ctx, channelID, member)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && !cursorAdvances(existing, msg) {
		return existing, nil
	}

	cursor := &models.ReadCursor{
		ID:                uuid.New().String(),
		ChannelID:         channelID,
		AgentID:           member.AgentID,
		UserIdentifier:    member.UserIdentifier,
		LastReadMessageID: msg.ID,
		LastReadAt:        msg.CreatedAt,
	}
	if existing != nil {
		cursor.ID = existing.ID
	}
	if err := s.repo.UpsertReadCursor(ctx, cursor); err != nil {
		return nil, err
	}
	return cursor, nil
}

// cursorAdvances reports whether msg is strictly newer than the
// position the cursor already holds, comparing (created_at, id).
func cursorAdvances(cursor *models.ReadCursor, msg *models.Message) bool {
	if !cursor.LastReadAt.Equal(msg.CreatedAt) {
		return msg.CreatedAt.After(cursor.LastReadAt)
	}
	return msg.ID > cursor.LastReadMessageID
}

// UnreadCount counts messages newer than the member's cursor; all
// messages when no cursor exists.
func (s *MessageService) UnreadCount(ctx context.Context, channelID string, member repository.Member) (int, error) {
	after, err := s.cursorInstant(ctx, channelID, member)
	if err != nil {
		return 0, err
	}
	return s.repo.CountAfter(ctx, channelID, after)
}

// UnreadMessages lists messages newer than the member's cursor,
// oldest-first.
func (s *MessageService) UnreadMessages(ctx context.Context, channelID string, member repository.Member) ([]*models.Message, error) {
	after, err := s.cursorInstant(ctx, channelID, member)
	if err != nil {
		return nil, err
	}
	return s.repo.MessagesAfter(ctx, channelID, after)
}

func (s *MessageService) cursorInstant(ctx context.Context, channelID string, member repository.Member) (time.Time, error) {
	if err := validateMember(member); err != nil {
		return time.Time{}, err
	}
	cursor, err := s.repo.GetReadCursor(ctx, channelID, member)
	if apperr.IsNotFound(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return cursor.LastReadAt, nil
}

// GetMessage fetches one message.
func (s *MessageService) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	return s.repo.GetMessage(ctx, id)
}

func validateMember(m repository.Member) error {
	if m.AgentID != "" && m.UserIdentifier != "" {
		return apperr.Validation("specify an agent or a human identifier, not both")
	}
	if m.AgentID == "" && m.UserIdentifier == "" {
		return apperr.Validation("an agent or a human identifier is required")
	}
	return nil
}
