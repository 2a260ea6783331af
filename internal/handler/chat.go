package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/capitalize-ai/agent-chat/internal/middleware"
	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// maxJSONChatBody bounds a JSON chat request.
const maxJSONChatBody = 1 << 20

var errConversationIDRequired = errors.New("conversation id required")

// ChatHandler handles chat turns.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// chatBody is the JSON form of a chat turn. The conversation id may be a
// number or a numeric string.
type chatBody struct {
	Message             string          `json:"message"`
	ConversationID      json.RawMessage `json:"conversationId"`
	ConversationIDSnake json.RawMessage `json:"conversation_id"`
}

// Send handles POST /api/chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		req   service.SendRequest
		rawID string
	)
	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			writeServiceError(w, r, h.logger, err, CodeConversationNotFound)
			return
		}
		defer cleanupMultipart(r)
		req.Message = r.FormValue("message")
		rawID = r.FormValue("conversationId")
		if rawID == "" {
			rawID = r.FormValue("conversation_id")
		}
		req.Files = formFiles(r)
	} else {
		var body chatBody
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONChatBody)
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid request body")
			return
		}
		req.Message = body.Message
		raw := body.ConversationID
		if len(raw) == 0 {
			raw = body.ConversationIDSnake
		}
		rawID = rawJSONID(raw)
	}

	id, err := parseConversationID(rawID)
	switch {
	case errors.Is(err, errConversationIDRequired):
		writeError(w, http.StatusBadRequest, CodeConversationIDRequired, "conversationId is required")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, CodeInvalidConversationID, "conversationId must be a positive integer")
		return
	}
	req.ConversationID = id

	resp, err := h.service.Send(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		var saved *model.Message
		if resp != nil {
			saved = resp.UserMessage
		}
		writeTurnError(w, r, h.logger, err, saved)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// rawJSONID returns the textual form of a JSON number or string.
func rawJSONID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseConversationID(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, errConversationIDRequired
	}
	return middleware.ParseID(raw)
}
