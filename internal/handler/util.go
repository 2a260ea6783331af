package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// Error codes returned in the "error" field of failed responses.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidBody            = "INVALID_REQUEST_BODY"
	CodeMessageRequired        = "MESSAGE_REQUIRED"
	CodeConversationIDRequired = "CONVERSATION_ID_REQUIRED"
	CodeInvalidConversationID  = "INVALID_CONVERSATION_ID"
	CodeInvalidAttachmentID    = "INVALID_ATTACHMENT_ID"
	CodeTitleRequired          = "TITLE_REQUIRED"
	CodeCredentialsRequired    = "EMAIL_AND_PASSWORD_REQUIRED"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeNotFound               = "NOT_FOUND"
	CodeConversationNotFound   = "CONVERSATION_NOT_FOUND"
	CodeAttachmentNotFound     = "ATTACHMENT_NOT_FOUND"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeFileNotFound           = "FILE_NOT_FOUND"
	CodeEmailExists            = "EMAIL_ALREADY_EXISTS"
	CodeConflict               = "CONFLICT"
	CodeFileTooLarge           = "FILE_TOO_LARGE"
	CodeTotalSizeExceeded      = "TOTAL_SIZE_EXCEEDED"
	CodeTooManyFiles           = "TOO_MANY_FILES"
	CodeUnsupportedFileType    = "UNSUPPORTED_FILE_TYPE"
	CodeNoFiles                = "NO_FILES"
	CodeAgentFailed            = "AGENT_REQUEST_FAILED"
	CodeAgentNotConfigured     = "AGENT_NOT_CONFIGURED"
	CodeInternal               = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error       string         `json:"error"`
	Message     string         `json:"message,omitempty"`
	UserMessage *model.Message `json:"userMessage,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeServiceError maps a service error onto a status and code. notFound is
// the code used for model.ErrNotFound on this route.
func writeServiceError(w http.ResponseWriter, r *http.Request, fallback *logger.Logger, err error, notFound string) {
	writeErrorResponse(w, r, fallback, err, notFound, nil)
}

// writeTurnError is writeServiceError for chat turns. A failure after the
// user turn was stored carries that message so the client knows it was saved.
func writeTurnError(w http.ResponseWriter, r *http.Request, fallback *logger.Logger, err error, saved *model.Message) {
	writeErrorResponse(w, r, fallback, err, CodeConversationNotFound, saved)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, fallback *logger.Logger, err error, notFound string, saved *model.Message) {
	status, resp := classify(err, notFound)
	resp.UserMessage = saved
	log := logger.FromContext(r.Context(), fallback)
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		log.Error("request failed", zap.Error(err))
	case status == http.StatusBadGateway:
		log.Warn("agent request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func classify(err error, notFound string) (int, ErrorResponse) {
	var (
		upErr      *model.UploadError
		constraint *model.ConstraintError
	)
	switch {
	case errors.Is(err, service.ErrMessageRequired):
		return http.StatusBadRequest, ErrorResponse{Error: CodeMessageRequired, Message: "message text or files are required"}
	case errors.Is(err, service.ErrTitleRequired):
		return http.StatusBadRequest, ErrorResponse{Error: CodeTitleRequired, Message: "title is required"}
	case errors.Is(err, service.ErrCredentialsRequired):
		return http.StatusBadRequest, ErrorResponse{Error: CodeCredentialsRequired, Message: "email and password are required"}
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Error: CodeInvalidCredentials, Message: "invalid email or password"}
	case errors.As(err, &upErr):
		return uploadStatus(upErr)
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: CodeValidation, Message: err.Error()}
	case errors.Is(err, model.ErrFileMissing):
		return http.StatusNotFound, ErrorResponse{Error: CodeFileNotFound, Message: "file is no longer available"}
	case errors.Is(err, model.ErrNotFound):
		if notFound == "" {
			notFound = CodeNotFound
		}
		return http.StatusNotFound, ErrorResponse{Error: notFound, Message: "not found"}
	case errors.Is(err, model.ErrDuplicateEmail):
		return http.StatusConflict, ErrorResponse{Error: CodeEmailExists, Message: "email is already registered"}
	case errors.As(err, &constraint):
		return http.StatusConflict, ErrorResponse{Error: CodeConflict, Message: "conflicting change"}
	case errors.Is(err, model.ErrUpstream):
		return http.StatusBadGateway, ErrorResponse{Error: CodeAgentFailed, Message: "agent request failed"}
	case errors.Is(err, service.ErrAgentNotConfigured):
		return http.StatusInternalServerError, ErrorResponse{Error: CodeAgentNotConfigured, Message: "agent is not configured"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: CodeInternal, Message: "internal server error"}
	}
}

func uploadStatus(err *model.UploadError) (int, ErrorResponse) {
	resp := ErrorResponse{Message: err.Error()}
	switch err.Reason {
	case model.RejectFileTooLarge:
		resp.Error = CodeFileTooLarge
		return http.StatusRequestEntityTooLarge, resp
	case model.RejectTotalTooLarge:
		resp.Error = CodeTotalSizeExceeded
		return http.StatusRequestEntityTooLarge, resp
	case model.RejectTooManyFiles:
		resp.Error = CodeTooManyFiles
		return http.StatusRequestEntityTooLarge, resp
	case model.RejectExtension:
		resp.Error = CodeUnsupportedFileType
	default:
		resp.Error = CodeNoFiles
	}
	return http.StatusBadRequest, resp
}

// decodeJSON decodes a request body, allowing an empty body.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
