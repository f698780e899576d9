package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/comms/models"
	"github.com/botcrew/botcrew/internal/comms/repository"
)

// CreateChannelInput describes a channel to create.
type CreateChannelInput struct {
	Name        string
	Description string
	Type        models.ChannelType
	// Creator is the human identifier of the creator; added as a
	// member when set.
	Creator string
	// InitialAgentIDs are added as members in the same transaction.
	InitialAgentIDs []string
}

// ChannelService manages channels and membership.
type ChannelService struct {
	repo   repository.Repository
	logger *logger.Logger
}

// NewChannelService creates a channel service.
func NewChannelService(repo repository.Repository, log *logger.Logger) *ChannelService {
	return &ChannelService{repo: repo, logger: log}
}

// Create makes the channel and its initial members in one transaction.
func (s *ChannelService) Create(ctx context.Context, in CreateChannelInput) (*models.Channel, error) {
	if in.Name == "" {
		return nil, apperr.ValidationField("name", "name must not be empty")
	}
	if in.Type == "" {
		in.Type = models.ChannelTypeCustom
	}
	if !models.ValidChannelType(in.Type) {
		return nil, apperr.ValidationField("type", "invalid channel type %q", in.Type)
	}

	now := time.Now().UTC()
	channel := &models.Channel{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		CreatedBy:   in.Creator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var members []*models.ChannelMember
	for _, agentID := range in.InitialAgentIDs {
		members = append(members, &models.ChannelMember{
			ID:        uuid.New().String(),
			ChannelID: channel.ID,
			AgentID:   agentID,
			CreatedAt: now,
		})
	}
	if in.Creator != "" {
		members = append(members, &models.ChannelMember{
			ID:             uuid.New().String(),
			ChannelID:      channel.ID,
			UserIdentifier: in.Creator,
			CreatedAt:      now,
		})
	}

	if err := s.repo.CreateChannel(ctx, channel, members); err != nil {
		return nil, err
	}
	s.logger.Info("Channel created",
		zap.String("channel_id", channel.ID),
		zap.String("type", string(channel.Type)),
	)
	return channel, nil
}

// Get fetches a channel.
func (s *ChannelService) Get(ctx context.Context, id string) (*models.Channel, error) {
	return s.repo.GetChannel(ctx, id)
}

// Update writes name and description.
func (s *ChannelService) Update(ctx context.Context, channel *models.Channel) error {
	if channel.Name == "" {
		return apperr.ValidationField("name", "name must not be empty")
	}
	return s.repo.UpdateChannel(ctx, channel)
}

// Delete removes a channel and everything under it.
func (s *ChannelService) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteChannel(ctx, id)
}

// List returns channels, optionally filtered to one member's.
func (s *ChannelService) List(ctx context.Context, filter *repository.Member) ([]*models.Channel, error) {
	if filter != nil {
		if err := validateMember(*filter); err != nil {
			return nil, err
		}
	}
	return s.repo.ListChannels(ctx, filter)
}

// GetOrCreateDM returns the dm channel pairing the agent with the
// peer, creating it on first use. Repeated calls return the same
// channel.
func (s *ChannelService) GetOrCreateDM(ctx context.Context, agentID string, peer repository.Member) (*models.Channel, error) {
	if err := validateMember(peer); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindDMChannel(ctx, agentID, peer)
	if err == nil {
		return existing, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	channel := &models.Channel{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("dm-%s", agentID),
		Type:      models.ChannelTypeDM,
		CreatedBy: peer.UserIdentifier,
		CreatedAt: now,
		UpdatedAt: now,
	}
	members := []*models.ChannelMember{
		{
			ID:        uuid.New().String(),
			ChannelID: channel.ID,
			AgentID:   agentID,
			CreatedAt: now,
		},
		{
			ID:             uuid.New().String(),
			ChannelID:      channel.ID,
			AgentID:        peer.AgentID,
			UserIdentifier: peer.UserIdentifier,
			CreatedAt:      now,
		},
	}

	if err := s.repo.CreateChannel(ctx, channel, members); err != nil {
		// A concurrent call may have created it first.
		if apperr.IsConflict(err) {
			return s.repo.FindDMChannel(ctx, agentID, peer)
		}
		return nil, err
	}
	s.logger.Info("DM channel created",
		zap.String("channel_id", channel.ID),
		zap.String("agent_id", agentID),
	)
	return channel, nil
}

// AddMember adds a member; duplicates conflict so callers can treat
// re-adds as idempotent.
func (s *ChannelService) AddMember(ctx context.Context, channelID string, member repository.Member) (*models.ChannelMember, error) {
	if err := validateMember(member); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}

	m := &models.ChannelMember{
		ID:             uuid.New().String(),
		ChannelID:      channelID,
		AgentID:        member.AgentID,
		UserIdentifier: member.UserIdentifier,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember removes a member.
func (s *ChannelService) RemoveMember(ctx context.Context, channelID string, member repository.Member) error {
	if err := validateMember(member); err != nil {
		return err
	}
	return s.repo.RemoveMember(ctx, channelID, member)
}

// ListMembers returns a channel's members.
func (s *ChannelService) ListMembers(ctx context.Context, channelID string) ([]*models.ChannelMember, error) {
	if _, err := s.repo.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, channelID)
}

// ChannelAgentIDs returns only the agent members, for mention routing
// and evaluation dispatch.
func (s *ChannelService) ChannelAgentIDs(ctx context.Context, channelID string) ([]string, error) {
	return s.repo.ChannelAgentIDs(ctx, channelID)
}
