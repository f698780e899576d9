// Package handlers exposes the communication REST surface and the
// websocket session endpoint.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/common/pagination"
	"github.com/botcrew/botcrew/internal/comms/models"
	"github.com/botcrew/botcrew/internal/comms/repository"
	"github.com/botcrew/botcrew/internal/comms/service"
	api "github.com/botcrew/botcrew/pkg/api/v1"
)

// Handler serves /channels and /dm.
type Handler struct {
	channels *service.ChannelService
	messages *service.MessageService
	hub      *service.Hub
	logger   *logger.Logger
}

// NewHandler creates the comms handler.
func NewHandler(channels *service.ChannelService, messages *service.MessageService, hub *service.Hub, log *logger.Logger) *Handler {
	return &Handler{channels: channels, messages: messages, hub: hub, logger: log}
}

// RegisterRoutes mounts the channel and DM endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	channels := r.Group("/channels")
	channels.POST("", h.createChannel)
	channels.GET("", h.listChannels)
	channels.GET("/:id", h.getChannel)
	channels.PATCH("/:id", h.updateChannel)
	channels.DELETE("/:id", h.deleteChannel)

	channels.GET("/:id/members", h.listMembers)
	channels.POST("/:id/members", h.addMember)
	channels.DELETE("/:id/members", h.removeMember)

	channels.GET("/:id/messages", h.history)
	channels.POST("/:id/messages", h.sendMessage)
	channels.GET("/:id/unread", h.unread)
	channels.POST("/:id/read", h.markRead)

	r.POST("/dm", h.sendDM)
}

// memberFromQuery reads the agent_id / user_identifier pair from query
// parameters.
func memberFromQuery(c *gin.Context) repository.Member {
	return repository.Member{
		AgentID:        c.Query("agent_id"),
		UserIdentifier: c.Query("user_identifier"),
	}
}

type createChannelRequest struct {
	Name            string   `json:"name" binding:"required"`
	Description     string   `json:"description"`
	Type            string   `json:"type"`
	Creator         string   `json:"creator"`
	InitialAgentIDs []string `json:"initial_agent_ids"`
}

func (h *Handler) createChannel(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid channel payload: %v", err))
		return
	}

	channel, err := h.channels.Create(c.Request.Context(), service.CreateChannelInput{
		Name:            req.Name,
		Description:     req.Description,
		Type:            models.ChannelType(req.Type),
		Creator:         req.Creator,
		InitialAgentIDs: req.InitialAgentIDs,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "channels", channel.ID, channel)
}

func (h *Handler) listChannels(c *gin.Context) {
	var filter *repository.Member
	if m := memberFromQuery(c); m.AgentID != "" || m.UserIdentifier != "" {
		filter = &m
	}

	channels, err := h.channels.List(c.Request.Context(), filter)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(channels))
	for _, ch := range channels {
		resources = append(resources, api.NewResource("channels", ch.ID, ch))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

func (h *Handler) getChannel(c *gin.Context) {
	channel, err := h.channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "channels", channel.ID, channel)
}

type updateChannelRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) updateChannel(c *gin.Context) {
	var req updateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid channel payload: %v", err))
		return
	}

	channel, err := h.channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	if req.Name != nil {
		channel.Name = *req.Name
	}
	if req.Description != nil {
		channel.Description = *req.Description
	}
	if err := h.channels.Update(c.Request.Context(), channel); err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "channels", channel.ID, channel)
}

func (h *Handler) deleteChannel(c *gin.Context) {
	if err := h.channels.Delete(c.Request.Context(), c.Param("id")); err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMembers(c *gin.Context) {
	members, err := h.channels.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	resources := make([]api.Resource, 0, len(members))
	for _, m := range members {
		resources = append(resources, api.NewResource("channel-members", m.ID, m))
	}
	api.RespondList(c, http.StatusOK, resources, nil, nil)
}

type memberRequest struct {
	AgentID        string `json:"agent_id"`
	UserIdentifier string `json:"user_identifier"`
}

func (h *Handler) addMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid member payload: %v", err))
		return
	}

	member, err := h.channels.AddMember(c.Request.Context(), c.Param("id"), repository.Member{
		AgentID:        req.AgentID,
		UserIdentifier: req.UserIdentifier,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "channel-members", member.ID, member)
}

func (h *Handler) removeMember(c *gin.Context) {
	err := h.channels.RemoveMember(c.Request.Context(), c.Param("id"), memberFromQuery(c))
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) history(c *gin.Context) {
	pageSize := 0
	if raw := c.Query("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			api.RespondError(c, apperr.ValidationField("page_size", "page_size must be an integer"))
			return
		}
		pageSize = size
	}

	// The channel lookup distinguishes empty history from a missing
	// channel.
	if _, err := h.channels.Get(c.Request.Context(), c.Param("id")); err != nil {
		api.RespondError(c, err)
		return
	}

	page, err := h.messages.History(c.Request.Context(), c.Param("id"), pageSize, c.Query("cursor"))
	if err != nil {
		api.RespondError(c, err)
		return
	}

	resources := make([]api.Resource, 0, len(page.Messages))
	for _, m := range page.Messages {
		resources = append(resources, api.NewResource("messages", m.ID, m))
	}
	var links *api.Links
	if page.NextCursor != "" {
		links = &api.Links{Next: page.NextCursor}
	}
	api.RespondList(c, http.StatusOK, resources, pagination.Meta{HasNext: page.HasNext}, links)
}

type sendMessageRequest struct {
	Content              string         `json:"content" binding:"required"`
	Type                 string         `json:"type"`
	SenderAgentID        string         `json:"sender_agent_id"`
	SenderUserIdentifier string         `json:"sender_user_identifier"`
	Metadata             map[string]any `json:"metadata"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid message payload: %v", err))
		return
	}

	msg, err := h.hub.SendChannelMessage(c.Request.Context(), service.SendChannelMessageInput{
		ChannelID: c.Param("id"),
		Content:   req.Content,
		Type:      models.MessageType(req.Type),
		Sender: repository.Member{
			AgentID:        req.SenderAgentID,
			UserIdentifier: req.SenderUserIdentifier,
		},
		Metadata: req.Metadata,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "messages", msg.ID, msg)
}

func (h *Handler) unread(c *gin.Context) {
	ctx := c.Request.Context()
	channelID := c.Param("id")
	member := memberFromQuery(c)

	count, err := h.messages.UnreadCount(ctx, channelID, member)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	attributes := gin.H{"count": count}
	if c.Query("include") == "messages" {
		msgs, err := h.messages.UnreadMessages(ctx, channelID, member)
		if err != nil {
			api.RespondError(c, err)
			return
		}
		attributes["messages"] = msgs
	}
	api.RespondResource(c, http.StatusOK, "unread", channelID, attributes)
}

type markReadRequest struct {
	MessageID      string `json:"message_id" binding:"required"`
	AgentID        string `json:"agent_id"`
	UserIdentifier string `json:"user_identifier"`
}

func (h *Handler) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid read payload: %v", err))
		return
	}

	cursor, err := h.messages.UpdateReadCursor(c.Request.Context(), c.Param("id"), req.MessageID, repository.Member{
		AgentID:        req.AgentID,
		UserIdentifier: req.UserIdentifier,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusOK, "read-cursors", cursor.ID, cursor)
}

type sendDMRequest struct {
	TargetAgentID        string `json:"target_agent_id" binding:"required"`
	Content              string `json:"content" binding:"required"`
	SenderAgentID        string `json:"sender_agent_id"`
	SenderUserIdentifier string `json:"sender_user_identifier"`
}

func (h *Handler) sendDM(c *gin.Context) {
	var req sendDMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondError(c, apperr.Validation("invalid dm payload: %v", err))
		return
	}

	msg, err := h.hub.SendDirectMessage(c.Request.Context(), req.TargetAgentID, req.Content, repository.Member{
		AgentID:        req.SenderAgentID,
		UserIdentifier: req.SenderUserIdentifier,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}
	api.RespondResource(c, http.StatusCreated, "messages", msg.ID, msg)
}
