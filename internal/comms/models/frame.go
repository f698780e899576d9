package models

import (
	"encoding/json"
	"time"
)

// Sender type values carried in outbound frames.
const (
	SenderTypeUser   = "user"
	SenderTypeAgent  = "agent"
	SenderTypeSystem = "system"
)

// Frame is the outbound realtime frame published on the bus and
// written to sessions. sender_id is null for system messages.
type Frame struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	SenderType  string    `json:"sender_type"`
	SenderID    *string   `json:"sender_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// FrameFromMessage builds the outbound frame for a persisted message.
func FrameFromMessage(msg *Message) *Frame {
	frame := &Frame{
		Type:        "message",
		ID:          msg.ID,
		ChannelID:   msg.ChannelID,
		SenderType:  SenderTypeSystem,
		Content:     msg.Content,
		MessageType: string(msg.Type),
		CreatedAt:   msg.CreatedAt,
	}
	switch {
	case msg.SenderAgentID != "":
		frame.SenderType = SenderTypeAgent
		frame.SenderID = &msg.SenderAgentID
	case msg.SenderUserID != "":
		frame.SenderType = SenderTypeUser
		frame.SenderID = &msg.SenderUserID
	}
	return frame
}

// Encode serializes the frame for bus publish and session writes.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// InboundFrame is what sessions send to the orchestrator.
type InboundFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

// ErrorFrame is a local frame telling one session its input was
// rejected. It is never published to the bus.
type ErrorFrame struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(detail string) *ErrorFrame {
	return &ErrorFrame{Type: "error", Detail: detail}
}
