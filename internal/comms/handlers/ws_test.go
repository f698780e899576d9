package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentmodels "github.com/botcrew/botcrew/internal/agent/models"
	"github.com/botcrew/botcrew/internal/bus"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/comms/models"
	"github.com/botcrew/botcrew/internal/comms/repository"
	"github.com/botcrew/botcrew/internal/comms/service"
	"github.com/botcrew/botcrew/internal/comms/session"
	"github.com/botcrew/botcrew/internal/delivery"
)

type emptyDirectory struct{}

func (emptyDirectory) GetByIDs(ctx context.Context, ids []string) ([]*agentmodels.Agent, error) {
	return nil, nil
}

type wsFixture struct {
	server   *httptest.Server
	channels *service.ChannelService
	messages *service.MessageService
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stdout"})
	require.NoError(t, err)

	repo := repository.NewMemoryRepository()
	messages := service.NewMessageService(repo, log)
	channels := service.NewChannelService(repo, log)
	b := bus.NewMemoryBus(log)
	hub := service.NewHub(messages, channels, emptyDirectory{}, b, delivery.NewMemoryQueue(nil, log), log)

	registry := session.NewRegistry(log)
	listener := session.NewListener(b, registry, log)
	require.NoError(t, listener.Start())

	router := gin.New()
	NewWSHandler(channels, messages, hub, registry, log).RegisterRoutes(router)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		listener.Stop()
		b.Close()
	})
	return &wsFixture{server: srv, channels: channels, messages: messages}
}

func (f *wsFixture) dial(t *testing.T, channelID, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/channels/" + channelID + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestServeUnknownChannelCloses(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "missing", "")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, closeChannelNotFound, closeErr.Code)
}

func TestServeJoinNoticeAndInboundRoundTrip(t *testing.T) {
	f := newWSFixture(t)
	channel, err := f.channels.Create(context.Background(), service.CreateChannelInput{
		Name: "crew",
		Type: models.ChannelTypeShared,
	})
	require.NoError(t, err)

	conn := f.dial(t, channel.ID, "?client_id=c1&user_identifier=alice")

	join := readFrame(t, conn)
	assert.Equal(t, "message", join["type"])
	assert.Equal(t, string(models.MessageTypeSystem), join["message_type"])
	assert.Contains(t, join["content"], "alice joined the channel")

	require.NoError(t, conn.WriteJSON(models.InboundFrame{Type: "message", Content: "hello crew"}))

	echo := readFrame(t, conn)
	assert.Equal(t, "hello crew", echo["content"])
	assert.Equal(t, models.SenderTypeUser, echo["sender_type"])
	assert.Equal(t, "alice", echo["sender_id"])

	page, err := f.messages.History(context.Background(), channel.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "hello crew", page.Messages[0].Content)
}

func TestServeRejectsInvalidInboundFrame(t *testing.T) {
	f := newWSFixture(t)
	channel, err := f.channels.Create(context.Background(), service.CreateChannelInput{
		Name: "crew",
		Type: models.ChannelTypeShared,
	})
	require.NoError(t, err)

	conn := f.dial(t, channel.ID, "?client_id=c1&user_identifier=alice")
	readFrame(t, conn) // join notice

	require.NoError(t, conn.WriteJSON(models.InboundFrame{Type: "typing"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["detail"], "unsupported frame type")
}
