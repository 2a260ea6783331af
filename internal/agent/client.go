// Package agent talks to the external conversational agent.
package agent

import (
	"context"
	"encoding/json"
	"strings"
)

// EmptyReply is stored when the agent answers with nothing usable.
const EmptyReply = "Пустой ответ от агента."

// HistoryTurn is one prior turn sent for context.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment describes a file that accompanies the current turn. Base64 is
// set only for images, as a data URL.
type Attachment struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
	Base64 string `json:"base64,omitempty"`
}

// Request is the payload posted to the agent.
type Request struct {
	Message        string        `json:"message"`
	UserID         int64         `json:"userId"`
	ConversationID int64         `json:"conversationId"`
	History        []HistoryTurn `json:"history"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
}

// Client produces the agent's reply for a turn.
type Client interface {
	Reply(ctx context.Context, req *Request) (string, error)
}

// ResolveReply extracts the reply text from an agent response body: the
// first non-empty "reply" or "text" string as sent, else the body verbatim.
// An empty body, null or a blank JSON string becomes EmptyReply.
func ResolveReply(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return EmptyReply
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return trimmed
	}

	switch v := decoded.(type) {
	case map[string]any:
		for _, key := range []string{"reply", "text"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
		return trimmed
	case string:
		if strings.TrimSpace(v) == "" {
			return EmptyReply
		}
		return v
	default:
		return trimmed
	}
}
