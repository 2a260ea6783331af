package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/service"
)

const (
	// multipartMemory is how much of a multipart body is kept in memory
	// before spilling to temporary files.
	multipartMemory = 32 << 20
	// multipartOverhead allows for form fields and part headers on top of
	// the file payload limit.
	multipartOverhead = 1 << 20
)

// isMultipart reports whether the request carries multipart/form-data.
func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart parses the form, bounding the body size. An oversize body
// is reported as a total size rejection.
func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxRequestSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &model.UploadError{Reason: model.RejectTotalTooLarge, Detail: "request body too large"}
		}
		return model.Validationf("invalid multipart body: %v", err)
	}
	return nil
}

// formFiles converts the "files" parts into uploads.
func formFiles(r *http.Request) []service.FileUpload {
	if r.MultipartForm == nil {
		return nil
	}
	headers := r.MultipartForm.File["files"]
	files := make([]service.FileUpload, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, service.FileUpload{
			Name:        fh.Filename,
			ContentType: strings.TrimSpace(fh.Header.Get("Content-Type")),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

