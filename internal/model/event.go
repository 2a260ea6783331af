package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeUpstreamFailure EventType = "upstream_failure"
	EventTypeArchived        EventType = "archived"
)

// ConversationEvent represents an event in a conversation.
type ConversationEvent struct {
	ConversationID int64          `json:"conversation_id"`
	UserID         int64          `json:"user_id"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
