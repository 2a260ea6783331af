package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/middleware"
	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

// AttachmentHandler handles upload and download endpoints.
type AttachmentHandler struct {
	service *service.AttachmentService
	logger  *logger.Logger
}

// NewAttachmentHandler creates a new attachment handler.
func NewAttachmentHandler(svc *service.AttachmentService, log *logger.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		service: svc,
		logger:  log,
	}
}

// Upload handles POST /api/uploads
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !isMultipart(r) {
		writeError(w, http.StatusBadRequest, CodeNoFiles, "expected multipart/form-data with files")
		return
	}
	if err := parseMultipart(w, r); err != nil {
		writeServiceError(w, r, h.logger, err, CodeAttachmentNotFound)
		return
	}
	defer cleanupMultipart(r)

	resp, err := h.service.Upload(ctx, middleware.GetUserID(ctx), formFiles(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, CodeAttachmentNotFound)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Download handles GET /api/attachments/{id}. The file is served inline
// for images and PDFs unless ?download=1 is given.
func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidAttachmentID, "attachment id must be a positive integer")
		return
	}

	att, body, err := h.service.Open(ctx, middleware.GetUserID(ctx), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, CodeAttachmentNotFound)
		return
	}
	defer body.Close()

	contentType := att.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.FormatInt(att.SizeBytes, 10))
	header.Set("Content-Disposition", service.ContentDisposition(att, forceDownload(r)))
	header.Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		logger.FromContext(ctx, h.logger).Warn("attachment stream interrupted",
			zap.Int64("attachment_id", att.ID),
			zap.Error(err),
		)
	}
}

func forceDownload(r *http.Request) bool {
	v := r.URL.Query().Get("download")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
