package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/storage"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

// Upload limits.
const (
	MaxFileSize        int64 = 20 << 20
	MaxRequestSize     int64 = 50 << 20
	MaxFilesPerRequest       = 10
)

const defaultMimeType = "application/octet-stream"

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".txt": {}, ".csv": {}, ".rtf": {}, ".odt": {}, ".ods": {},
	".zip": {}, ".rar": {}, ".7z": {},
	".mp3": {}, ".mp4": {}, ".wav": {},
	".json": {}, ".xml": {},
}

// AllowedExtension reports whether ext (with leading dot) may be uploaded.
func AllowedExtension(ext string) bool {
	_, ok := allowedExtensions[strings.ToLower(ext)]
	return ok
}

// FileUpload is one inbound file.
type FileUpload struct {
	Name        string
	ContentType string
	// Size is the declared size in bytes, -1 when unknown.
	Size int64
	Open func() (io.ReadCloser, error)
}

func (f FileUpload) extension() string {
	return strings.ToLower(path.Ext(f.Name))
}

func (f FileUpload) mimeType() string {
	if ct := strings.TrimSpace(f.ContentType); ct != "" {
		return ct
	}
	if byExt := mime.TypeByExtension(f.extension()); byExt != "" {
		return byExt
	}
	return defaultMimeType
}

// AttachmentService validates, stores and serves uploaded files.
type AttachmentService struct {
	store  Store
	guard  *Guard
	blobs  storage.BlobStore
	logger *logger.Logger
	now    func() time.Time
}

// NewAttachmentService creates the attachment pipeline.
func NewAttachmentService(store Store, guard *Guard, blobs storage.BlobStore, log *logger.Logger) *AttachmentService {
	return &AttachmentService{
		store:  store,
		guard:  guard,
		blobs:  blobs,
		logger: log,
		now:    time.Now,
	}
}

// Validate applies the upload policy in order: extension, per-file size,
// aggregate size, file count. The first violation wins. An empty list is
// rejected only when requireFiles is set.
func (s *AttachmentService) Validate(files []FileUpload, requireFiles bool) error {
	if len(files) == 0 {
		if requireFiles {
			return &model.UploadError{Reason: model.RejectNoFiles}
		}
		return nil
	}
	for _, f := range files {
		if !AllowedExtension(f.extension()) {
			return &model.UploadError{
				Reason: model.RejectExtension,
				Detail: fmt.Sprintf("file type %q is not allowed", f.extension()),
			}
		}
	}
	var total int64
	for _, f := range files {
		if f.Size > MaxFileSize {
			return &model.UploadError{
				Reason: model.RejectFileTooLarge,
				Detail: fmt.Sprintf("%s exceeds %d MB", f.Name, MaxFileSize>>20),
			}
		}
		if f.Size > 0 {
			total += f.Size
		}
	}
	if total > MaxRequestSize {
		return &model.UploadError{
			Reason: model.RejectTotalTooLarge,
			Detail: fmt.Sprintf("total size exceeds %d MB", MaxRequestSize>>20),
		}
	}
	if len(files) > MaxFilesPerRequest {
		return &model.UploadError{
			Reason: model.RejectTooManyFiles,
			Detail: fmt.Sprintf("at most %d files per request", MaxFilesPerRequest),
		}
	}
	return nil
}

// Upload stores standalone attachments for the caller.
func (s *AttachmentService) Upload(ctx context.Context, callerID int64, files []FileUpload) (*model.UploadResponse, error) {
	if err := s.Validate(files, true); err != nil {
		s.rejected(err, len(files))
		return nil, err
	}
	items, err := s.Ingest(ctx, callerID, files)
	if err != nil {
		return nil, err
	}
	return &model.UploadResponse{Attachments: views(items)}, nil
}

// Ingest writes the files to blob storage and records them. Either every
// row is inserted or none is; blobs written before a failure are removed on
// a best-effort basis.
func (s *AttachmentService) Ingest(ctx context.Context, ownerID int64, files []FileUpload) ([]model.Attachment, error) {
	if len(files) == 0 {
		return []model.Attachment{}, nil
	}
	if err := s.Validate(files, false); err != nil {
		s.rejected(err, len(files))
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "attachments.ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(files)))

	written := make([]string, 0, len(files))
	cleanup := func() {
		for _, key := range written {
			if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn("failed to remove orphan blob", zap.String("key", key), zap.Error(err))
			}
		}
	}

	items := make([]model.Attachment, 0, len(files))
	var total int64
	for _, f := range files {
		item, err := s.put(ctx, ownerID, f)
		if item != nil {
			written = append(written, item.StoredKey)
		}
		if err == nil {
			total += item.SizeBytes
			if total > MaxRequestSize {
				err = &model.UploadError{
					Reason: model.RejectTotalTooLarge,
					Detail: fmt.Sprintf("total size exceeds %d MB", MaxRequestSize>>20),
				}
			}
		}
		if err != nil {
			cleanup()
			s.rejected(err, len(files))
			span.RecordError(err)
			span.SetStatus(codes.Error, "ingest failed")
			return nil, err
		}
		items = append(items, *item)
	}

	created, err := s.store.CreateAttachments(ctx, items)
	if err != nil {
		cleanup()
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("record attachments: %w", err)
	}

	metrics.RecordUpload(len(created), total)
	s.logger.Info("attachments stored",
		zap.Int64("user_id", ownerID),
		zap.Int("files", len(created)),
		zap.Int64("bytes", total),
	)
	return created, nil
}

// put streams one file to blob storage. The returned attachment is non-nil
// whenever a blob was written, even if err is set.
func (s *AttachmentService) put(ctx context.Context, ownerID int64, f FileUpload) (*model.Attachment, error) {
	if f.Open == nil {
		return nil, model.Validationf("file %q has no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", f.Name, err)
	}
	defer rc.Close()

	ext := f.extension()
	key := s.storageKey(ownerID, ext)
	mimeType := f.mimeType()

	// The declared size comes from the client; the store streams to EOF and
	// the byte count it returns is the one recorded.
	n, err := s.blobs.Put(ctx, key, io.LimitReader(rc, MaxFileSize+1), -1, mimeType)
	item := &model.Attachment{
		UserID:       ownerID,
		OriginalName: f.Name,
		StoredKey:    key,
		MimeType:     mimeType,
		SizeBytes:    n,
		Extension:    ext,
	}
	if err != nil {
		return item, fmt.Errorf("store %q: %w", f.Name, err)
	}
	if n > MaxFileSize {
		return item, &model.UploadError{
			Reason: model.RejectFileTooLarge,
			Detail: fmt.Sprintf("%s exceeds %d MB", f.Name, MaxFileSize>>20),
		}
	}
	return item, nil
}

// storageKey derives <owner>/<YYYY-MM>/<uuid><ext>. The original name never
// takes part in the key.
func (s *AttachmentService) storageKey(ownerID int64, ext string) string {
	return fmt.Sprintf("%d/%s/%s%s", ownerID, s.now().UTC().Format("2006-01"), uuid.NewString(), ext)
}

// Open returns the caller's attachment and a reader for its bytes. A
// present row with absent bytes fails with model.ErrFileMissing.
func (s *AttachmentService) Open(ctx context.Context, callerID, attachmentID int64) (*model.Attachment, io.ReadCloser, error) {
	att, err := s.guard.Attachment(ctx, attachmentID, callerID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, att.StoredKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("attachment bytes missing",
				zap.Int64("attachment_id", att.ID),
				zap.String("key", att.StoredKey),
			)
			return nil, nil, model.ErrFileMissing
		}
		return nil, nil, fmt.Errorf("open attachment: %w", err)
	}
	return att, rc, nil
}

// readAll returns the stored bytes of att.
func (s *AttachmentService) readAll(ctx context.Context, att *model.Attachment) ([]byte, error) {
	rc, err := s.blobs.Open(ctx, att.StoredKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, MaxFileSize))
}

func (s *AttachmentService) rejected(err error, files int) {
	var upErr *model.UploadError
	if errors.As(err, &upErr) {
		metrics.RecordUploadRejected(string(upErr.Reason), files)
		s.logger.Warn("upload rejected",
			zap.String("reason", string(upErr.Reason)),
			zap.String("detail", upErr.Detail),
			zap.Int("files", files),
		)
	}
}

// ContentDisposition builds the header value for serving att. Images and
// PDFs render inline unless forceDownload is set.
func ContentDisposition(att *model.Attachment, forceDownload bool) string {
	kind := "attachment"
	if att.Inline() && !forceDownload {
		kind = "inline"
	}
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, kind, asciiFallback(att.OriginalName), encodeRFC5987(att.OriginalName))
}

func asciiFallback(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\' || r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case r > 0x7e:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
