package service

import (
	"context"
	"regexp"
	"strings"

	agentmodels "github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/bus"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/comms/models"
	"github.com/botcrew/botcrew/internal/comms/repository"
	"github.com/botcrew/botcrew/internal/delivery"
)

// mentionPattern matches @-prefixed tokens in message content.
var mentionPattern = regexp.MustCompile(`@[\w-]+`)

// AgentDirectory resolves agent records for mention-name matching.
type AgentDirectory interface {
	GetByIDs(ctx context.Context, ids []string) ([]*agentmodels.Agent, error)
}

// SendChannelMessageInput is a message headed into a channel.
type SendChannelMessageInput struct {
	ChannelID string
	Content   string
	Type      models.MessageType
	Sender    repository.Member
	Metadata  map[string]any
}

// Hub is the single write path for messages. Every send persists
// first, then publishes the realtime frame, then routes mentions and
// relevance evaluations through the delivery queue.
type Hub struct {
	messages *MessageService
	channels *ChannelService
	agents   AgentDirectory
	bus      bus.Bus
	queue    delivery.Queue
	logger   *logger.Logger
}

// NewHub creates the hub.
func NewHub(messages *MessageService, channels *ChannelService, agents AgentDirectory, b bus.Bus, queue delivery.Queue, log *logger.Logger) *Hub {
	return &Hub{
		messages: messages,
		channels: channels,
		agents:   agents,
		bus:      b,
		queue:    queue,
		logger:   log,
	}
}

// SendChannelMessage persists the message, publishes its frame, sends
// DM jobs to @mentioned agents, and, for human senders, enqueues
// relevance evaluations for the remaining agent members.
func (h *Hub) SendChannelMessage(ctx context.Context, in SendChannelMessageInput) (*models.Message, error) {
	channel, err := h.channels.Get(ctx, in.ChannelID)
	if err != nil {
		return nil, err
	}

	if in.Type == "" {
		in.Type = models.MessageTypeChat
	}
	msg, err := h.messages.Create(ctx, CreateMessageInput{
		ChannelID:     channel.ID,
		Content:       in.Content,
		Type:          in.Type,
		SenderAgentID: in.Sender.AgentID,
		SenderUserID:  in.Sender.UserIdentifier,
		Metadata:      in.Metadata,
	})
	if err != nil {
		return nil, err
	}

	h.publishFrame(ctx, msg)
	h.route(ctx, channel, msg, in.Sender)
	return msg, nil
}

// SendDirectMessage persists a dm into the channel pairing the target
// agent with the sender, publishes its frame, and enqueues a durable
// DM job for the agent.
func (h *Hub) SendDirectMessage(ctx context.Context, targetAgentID, content string, sender repository.Member) (*models.Message, error) {
	channel, err := h.channels.GetOrCreateDM(ctx, targetAgentID, sender)
	if err != nil {
		return nil, err
	}

	msg, err := h.messages.Create(ctx, CreateMessageInput{
		ChannelID:     channel.ID,
		Content:       content,
		Type:          models.MessageTypeDM,
		SenderAgentID: sender.AgentID,
		SenderUserID:  sender.UserIdentifier,
	})
	if err != nil {
		return nil, err
	}

	h.publishFrame(ctx, msg)

	senderType, senderID := senderIdentity(sender)
	if err := h.queue.DeliverDM(ctx, targetAgentID, delivery.DirectMessage{
		Content:        content,
		SenderType:     senderType,
		SenderID:       senderID,
		MessageID:      msg.ID,
		ReplyChannelID: channel.ID,
	}); err != nil {
		h.logger.WithError(err).WithAgentID(targetAgentID).Warn("Failed to enqueue dm delivery")
	}
	return msg, nil
}

// SendSystemMessage persists a system message with no sender and
// publishes it. System messages are never routed to agents.
func (h *Hub) SendSystemMessage(ctx context.Context, channelID, content string) (*models.Message, error) {
	if _, err := h.channels.Get(ctx, channelID); err != nil {
		return nil, err
	}

	msg, err := h.messages.Create(ctx, CreateMessageInput{
		ChannelID: channelID,
		Content:   content,
		Type:      models.MessageTypeSystem,
	})
	if err != nil {
		return nil, err
	}

	h.publishFrame(ctx, msg)
	return msg, nil
}

// publishFrame pushes the outbound frame to the channel topic.
// Delivery over the bus is best effort; the persisted row is the
// source of truth.
func (h *Hub) publishFrame(ctx context.Context, msg *models.Message) {
	frame, err := models.FrameFromMessage(msg).Encode()
	if err != nil {
		h.logger.WithError(err).WithChannelID(msg.ChannelID).Warn("Failed to encode frame")
		return
	}
	if err := h.bus.PublishChannel(ctx, msg.ChannelID, frame); err != nil {
		h.logger.WithError(err).WithChannelID(msg.ChannelID).Warn("Failed to publish frame")
	}
}

// route dispatches mention DM jobs, then relevance evaluations for
// every other agent member when the sender is human.
func (h *Hub) route(ctx context.Context, channel *models.Channel, msg *models.Message, sender repository.Member) {
	agentIDs, err := h.channels.ChannelAgentIDs(ctx, channel.ID)
	if err != nil {
		h.logger.WithError(err).WithChannelID(channel.ID).Warn("Failed to list agent members for routing")
		return
	}
	if len(agentIDs) == 0 {
		return
	}

	mentioned := h.dispatchMentions(ctx, channel, msg, sender, agentIDs)

	// Relevance evaluation applies only to human-authored messages;
	// agents already mentioned were notified directly.
	if sender.UserIdentifier == "" {
		return
	}
	isDM := channel.Type == models.ChannelTypeDM
	for _, agentID := range agentIDs {
		if mentioned[agentID] {
			continue
		}
		err := h.queue.EvaluateMessage(ctx, agentID, delivery.Evaluation{
			ChannelID:            channel.ID,
			MessageContent:       msg.Content,
			MessageID:            msg.ID,
			SenderUserIdentifier: sender.UserIdentifier,
			IsDM:                 isDM,
		})
		if err != nil {
			h.logger.WithError(err).WithAgentID(agentID).Warn("Failed to enqueue evaluation")
		}
	}
}

// dispatchMentions matches @tokens against agent display names and
// enqueues one DM job per matched agent. Returns the set of agent ids
// notified.
func (h *Hub) dispatchMentions(ctx context.Context, channel *models.Channel, msg *models.Message, sender repository.Member, agentIDs []string) map[string]bool {
	mentioned := make(map[string]bool)

	tokens := mentionPattern.FindAllString(msg.Content, -1)
	if len(tokens) == 0 {
		return mentioned
	}

	agents, err := h.agents.GetByIDs(ctx, agentIDs)
	if err != nil {
		h.logger.WithError(err).WithChannelID(channel.ID).Warn("Failed to resolve agents for mention routing")
		return mentioned
	}

	byVariant := make(map[string]string, len(agents)*3)
	for _, a := range agents {
		for _, v := range nameVariants(a.Name) {
			byVariant[v] = a.ID
		}
	}

	senderType, senderID := senderIdentity(sender)
	for _, token := range tokens {
		agentID, ok := byVariant[strings.ToLower(strings.TrimPrefix(token, "@"))]
		if !ok || mentioned[agentID] || agentID == sender.AgentID {
			continue
		}
		mentioned[agentID] = true

		err := h.queue.DeliverDM(ctx, agentID, delivery.DirectMessage{
			Content:        msg.Content,
			SenderType:     senderType,
			SenderID:       senderID,
			MessageID:      msg.ID,
			ReplyChannelID: channel.ID,
		})
		if err != nil {
			h.logger.WithError(err).WithAgentID(agentID).Warn("Failed to enqueue mention delivery")
		}
	}
	return mentioned
}

// nameVariants returns the case-folded forms a display name is
// matchable under: as-is, spaces as hyphens, and spaces plus hyphens
// as underscores.
func nameVariants(name string) []string {
	lower := strings.ToLower(name)
	hyphens := strings.ReplaceAll(lower, " ", "-")
	underscores := strings.ReplaceAll(hyphens, "-", "_")
	return []string{lower, hyphens, underscores}
}

func senderIdentity(m repository.Member) (senderType, senderID string) {
	switch {
	case m.AgentID != "":
		return models.SenderTypeAgent, m.AgentID
	case m.UserIdentifier != "":
		return models.SenderTypeUser, m.UserIdentifier
	}
	return models.SenderTypeSystem, ""
}
