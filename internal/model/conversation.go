// Package model defines data structures for the chat platform.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Conversation represents an ownable thread of turns.
type Conversation struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Title      *string    `json:"title"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	// Preview is the head of the most recent message, populated by listings only.
	Preview *string `json:"preview"`
}

// Archived reports whether the conversation has been soft-deleted.
func (c *Conversation) Archived() bool {
	return c.ArchivedAt != nil
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title *string `json:"title,omitempty"`
}

// UpdateConversationRequest is the request to rename a conversation.
// TitleSet records whether the body carried a title field at all; an
// explicit null clears the title while a missing field is rejected.
type UpdateConversationRequest struct {
	Title    *string `json:"title"`
	TitleSet bool    `json:"-"`
}

// UnmarshalJSON decodes the request, noting whether "title" was present.
func (r *UpdateConversationRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	raw, ok := fields["title"]
	r.TitleSet = ok
	r.Title = nil
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return nil
	}
	var title string
	if err := json.Unmarshal(raw, &title); err != nil {
		return fmt.Errorf("title: %w", err)
	}
	r.Title = &title
	return nil
}

// CreateConversationResponse is returned after creating a conversation.
type CreateConversationResponse struct {
	ConversationID int64         `json:"conversation_id"`
	Conversation   *Conversation `json:"conversation"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}
