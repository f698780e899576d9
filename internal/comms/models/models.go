// Package models defines the communication domain entities: channels,
// membership, messages, and read cursors.
package models

import "time"

// ChannelType classifies a channel's purpose.
type ChannelType string

const (
	ChannelTypeShared  ChannelType = "shared"
	ChannelTypeDM      ChannelType = "dm"
	ChannelTypeProject ChannelType = "project"
	ChannelTypeTask    ChannelType = "task"
	ChannelTypeCustom  ChannelType = "custom"
)

// ValidChannelType reports whether t is a known channel type.
func ValidChannelType(t ChannelType) bool {
	switch t {
	case ChannelTypeShared, ChannelTypeDM, ChannelTypeProject, ChannelTypeTask, ChannelTypeCustom:
		return true
	}
	return false
}

// Channel is a durable conversation surface.
type Channel struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        ChannelType `json:"type"`
	// CreatedBy is the human identifier of the creator, if any.
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelMember links a channel to exactly one agent or one human.
type ChannelMember struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	// Exactly one of AgentID / UserIdentifier is set.
	AgentID        string    `json:"agent_id,omitempty"`
	UserIdentifier string    `json:"user_identifier,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageType classifies a message.
type MessageType string

const (
	MessageTypeChat   MessageType = "chat"
	MessageTypeSystem MessageType = "system"
	MessageTypeDM     MessageType = "dm"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageTypeChat, MessageTypeSystem, MessageTypeDM:
		return true
	}
	return false
}

// Message is one persisted channel message. Sender is a tagged
// variant: agent, human, or neither for system messages.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	// At most one of SenderAgentID / SenderUserID is set; both empty
	// means a system message.
	SenderAgentID string         `json:"sender_agent_id,omitempty"`
	SenderUserID  string         `json:"sender_user_id,omitempty"`
	Content       string         `json:"content"`
	Type          MessageType    `json:"type"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ReadCursor tracks the last message a member has read in a channel.
// One cursor per (channel, agent) and per (channel, human); it only
// moves forward.
type ReadCursor struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	// Exactly one of AgentID / UserIdentifier is set.
	AgentID           string    `json:"agent_id,omitempty"`
	UserIdentifier    string    `json:"user_identifier,omitempty"`
	LastReadMessageID string    `json:"last_read_message_id"`
	LastReadAt        time.Time `json:"last_read_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
