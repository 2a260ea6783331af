// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/agent-chat/internal/middleware"
	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// maxMessagesLimit caps the limit query parameter of the transcript route.
const maxMessagesLimit = 1000

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid request body")
		return
	}

	conv, err := h.service.Create(ctx, userID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, CodeConversationNotFound)
		return
	}

	writeJSON(w, http.StatusCreated, &model.CreateConversationResponse{
		ConversationID: conv.ID,
		Conversation:   conv,
	})
}

// List handles GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err, CodeConversationNotFound)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Update handles PATCH /api/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, ok := conversationParam(w, r)
	if !ok {
		return
	}

	var req model.UpdateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid request body")
		return
	}

	conv, err := h.service.Rename(ctx, middleware.GetUserID(ctx), conversationID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, CodeConversationNotFound)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/conversations/{id}. Conversations are archived,
// never removed.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, ok := conversationParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Archive(ctx, middleware.GetUserID(ctx), conversationID); err != nil {
		writeServiceError(w, r, h.logger, err, CodeConversationNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Messages handles GET /api/conversations/{id}/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID, ok := conversationParam(w, r)
	if !ok {
		return
	}
	limit := middleware.ParseLimit(r.URL.Query().Get("limit"), maxMessagesLimit)

	resp, err := h.service.Messages(ctx, middleware.GetUserID(ctx), conversationID, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, CodeConversationNotFound)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func conversationParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidConversationID, "conversation id must be a positive integer")
		return 0, false
	}
	return id, true
}
