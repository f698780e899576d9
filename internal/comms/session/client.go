package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/comms/models"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxInboundFrameSize = 64 * 1024
	sendBufferSize      = 64
)

// InboundHandler processes one frame sent by the session. A returned
// error is reported back to that session only.
type InboundHandler func(ctx context.Context, s *Session, frame models.InboundFrame) error

// Session is one live websocket connection bound to a channel.
type Session struct {
	ChannelID string
	ClientID  string
	// UserIdentifier is the human the session authenticates as.
	UserIdentifier string

	conn    *websocket.Conn
	send    chan []byte
	inbound InboundHandler
	logger  *logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps an upgraded connection.
func NewSession(conn *websocket.Conn, channelID, clientID, userIdentifier string, inbound InboundHandler, log *logger.Logger) *Session {
	return &Session{
		ChannelID:      channelID,
		ClientID:       clientID,
		UserIdentifier: userIdentifier,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		done:           make(chan struct{}),
		inbound:        inbound,
		logger:         log,
	}
}

// Run pumps the connection until it closes. It blocks for the life of
// the session.
func (s *Session) Run(ctx context.Context) {
	go s.writePump()
	s.readPump(ctx)
}

// trySend queues a frame without blocking. Returns false when the
// session buffer is full or the session is closed. The send channel is
// never closed, so queueing onto a closing session is safe; the frame
// is simply never written.
func (s *Session) trySend(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// close signals shutdown. The write pump observes done, writes the
// close frame, and closes the connection. Safe to call from any
// goroutine, any number of times, concurrently with trySend.
func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(maxInboundFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Session read error",
					zap.String("client_id", s.ClientID),
					zap.Error(err),
				)
			}
			return
		}

		var frame models.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError("malformed frame")
			continue
		}
		if err := s.inbound(ctx, s, frame); err != nil {
			s.sendError(apperr.From(err).Message)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError reports a rejected inbound frame to this session only. It
// never reaches the bus or other sessions.
func (s *Session) sendError(detail string) {
	payload, err := json.Marshal(models.NewErrorFrame(detail))
	if err != nil {
		return
	}
	s.trySend(payload)
}
