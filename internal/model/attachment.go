package model

import (
	"fmt"
	"strings"
	"time"
)

// Attachment is an uploaded file owned by the uploading user.
type Attachment struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	OriginalName string    `json:"original_name"`
	StoredKey    string    `json:"-"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Extension    string    `json:"extension"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttachmentView is the client-facing projection of an attachment.
type AttachmentView struct {
	ID           int64  `json:"id"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	URL          string `json:"url"`
}

// IsImage reports whether the attachment is an image.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// Inline reports whether browsers should render the attachment in place.
func (a *Attachment) Inline() bool {
	return a.IsImage() || a.MimeType == "application/pdf"
}

// View projects the attachment for clients; the stored key is never exposed.
func (a *Attachment) View() AttachmentView {
	return AttachmentView{
		ID:           a.ID,
		OriginalName: a.OriginalName,
		MimeType:     a.MimeType,
		SizeBytes:    a.SizeBytes,
		URL:          AttachmentURL(a.ID),
	}
}

// AttachmentURL returns the retrieval path for an attachment id.
func AttachmentURL(id int64) string {
	return fmt.Sprintf("/api/attachments/%d", id)
}

// UploadResponse is returned by the standalone upload endpoint.
type UploadResponse struct {
	Attachments []AttachmentView `json:"attachments"`
}
