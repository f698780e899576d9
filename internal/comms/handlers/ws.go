package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/comms/models"
	"github.com/botcrew/botcrew/internal/comms/repository"
	"github.com/botcrew/botcrew/internal/comms/service"
	"github.com/botcrew/botcrew/internal/comms/session"
)

// closeChannelNotFound is sent when the handshake names an unknown
// channel.
const closeChannelNotFound = 4004

// WSHandler serves the websocket session endpoint.
type WSHandler struct {
	channels *service.ChannelService
	messages *service.MessageService
	hub      *service.Hub
	registry *session.Registry
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewWSHandler creates the session endpoint handler.
func NewWSHandler(channels *service.ChannelService, messages *service.MessageService, hub *service.Hub, registry *session.Registry, log *logger.Logger) *WSHandler {
	return &WSHandler{
		channels: channels,
		messages: messages,
		hub:      hub,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

// RegisterRoutes mounts the session endpoint.
func (h *WSHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/channels/:id", h.serve)
}

// serve runs one session: handshake, join, pump, leave. It blocks for
// the life of the connection.
func (h *WSHandler) serve(c *gin.Context) {
	channelID := c.Param("id")
	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}
	userIdentifier := c.Query("user_identifier")
	if userIdentifier == "" {
		userIdentifier = clientID
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	// The channel check happens after the upgrade so the close code
	// reaches the client.
	if _, err := h.channels.Get(c.Request.Context(), channelID); err != nil {
		msg := websocket.FormatCloseMessage(closeChannelNotFound, "channel not found")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
		return
	}

	s := session.NewSession(conn, channelID, clientID, userIdentifier, h.handleInbound, h.logger)
	h.registry.Add(s)
	h.logger.Debug("Session attached",
		zap.String("channel_id", channelID),
		zap.String("client_id", clientID),
	)

	h.systemMessage(channelID, fmt.Sprintf("%s joined the channel", userIdentifier))

	s.Run(c.Request.Context())

	h.registry.Remove(s)
	h.systemMessage(channelID, fmt.Sprintf("%s left the channel", userIdentifier))
	h.logger.Debug("Session detached",
		zap.String("channel_id", channelID),
		zap.String("client_id", clientID),
	)
}

// handleInbound validates one frame, sends it through the hub, and
// advances the sender's read cursor. Each call uses its own
// short-lived context so no transaction spans frame reads.
func (h *WSHandler) handleInbound(ctx context.Context, s *session.Session, frame models.InboundFrame) error {
	if frame.Type != "message" {
		return apperr.Validation("unsupported frame type %q", frame.Type)
	}
	if frame.Content == "" {
		return apperr.Validation("content must not be empty")
	}
	msgType := models.MessageType(frame.MessageType)
	if msgType == "" {
		msgType = models.MessageTypeChat
	}
	if msgType != models.MessageTypeChat && msgType != models.MessageTypeSystem {
		return apperr.Validation("message_type must be chat or system")
	}

	sender := repository.Member{UserIdentifier: s.UserIdentifier}
	msg, err := h.hub.SendChannelMessage(ctx, service.SendChannelMessageInput{
		ChannelID: s.ChannelID,
		Content:   frame.Content,
		Type:      msgType,
		Sender:    sender,
	})
	if err != nil {
		return err
	}

	if _, err := h.messages.UpdateReadCursor(ctx, s.ChannelID, msg.ID, sender); err != nil {
		h.logger.WithError(err).WithChannelID(s.ChannelID).Warn("Failed to advance sender read cursor")
	}
	return nil
}

// systemMessage emits a join/leave notice. Best effort: a failure must
// not break the session lifecycle.
func (h *WSHandler) systemMessage(channelID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.hub.SendSystemMessage(ctx, channelID, content); err != nil {
		h.logger.WithError(err).WithChannelID(channelID).Warn("Failed to send system message")
	}
}
