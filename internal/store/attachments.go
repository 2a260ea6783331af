package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

// CreateAttachment records the metadata of a stored file.
func (s *Store) CreateAttachment(ctx context.Context, ownerID int64, originalName, storedKey, mimeType string, sizeBytes int64, extension string) (*model.Attachment, error) {
	created, err := s.CreateAttachments(ctx, []model.Attachment{{
		UserID:       ownerID,
		OriginalName: originalName,
		StoredKey:    storedKey,
		MimeType:     mimeType,
		SizeBytes:    sizeBytes,
		Extension:    extension,
	}})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// CreateAttachments records several attachments atomically: either every
// row is inserted or none is.
func (s *Store) CreateAttachments(ctx context.Context, items []model.Attachment) ([]model.Attachment, error) {
	if len(items) == 0 {
		return []model.Attachment{}, nil
	}
	ts := now()
	models := make([]AttachmentModel, 0, len(items))
	for _, a := range items {
		models = append(models, AttachmentModel{
			UserID:       a.UserID,
			OriginalName: a.OriginalName,
			StoredKey:    a.StoredKey,
			MimeType:     a.MimeType,
			SizeBytes:    a.SizeBytes,
			Extension:    a.Extension,
			CreatedAt:    ts,
		})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&models).Error
	})
	if err != nil {
		return nil, translateError(err, "attachments_stored_key")
	}
	out := make([]model.Attachment, 0, len(models))
	for _, m := range models {
		out = append(out, *attachmentFromModel(m))
	}
	return out, nil
}

// LinkAttachment associates an attachment with a message. Linking the same
// pair again succeeds without change; linking an attachment that already
// belongs to a different message fails with model.ErrAttachmentLinked.
func (s *Store) LinkAttachment(ctx context.Context, messageID, attachmentID int64) error {
	db := s.db.WithContext(ctx)

	existing, err := s.linkedMessage(db, attachmentID)
	if err != nil {
		return err
	}
	if existing != 0 {
		return linkResult(existing, messageID)
	}

	link := AttachmentLinkModel{
		MessageID:    messageID,
		AttachmentID: attachmentID,
		CreatedAt:    now(),
	}
	if err := db.Create(&link).Error; err != nil {
		err = translateError(err, model.ConstraintAttachmentLink)
		if !errors.Is(err, model.ErrAttachmentLinked) {
			return err
		}
		// Lost a race with a concurrent link; settle on whoever won.
		existing, lookupErr := s.linkedMessage(db, attachmentID)
		if lookupErr != nil {
			return lookupErr
		}
		return linkResult(existing, messageID)
	}
	return nil
}

func (s *Store) linkedMessage(db *gorm.DB, attachmentID int64) (int64, error) {
	var link AttachmentLinkModel
	err := db.Where("attachment_id = ?", attachmentID).Limit(1).Find(&link).Error
	if err != nil {
		return 0, fmt.Errorf("lookup attachment link: %w", err)
	}
	return link.MessageID, nil
}

func linkResult(existing, requested int64) error {
	if existing == requested {
		return nil
	}
	return &model.ConstraintError{
		Constraint: model.ConstraintAttachmentLink,
		Err:        fmt.Errorf("attachment already linked to message %d", existing),
	}
}

// GetAttachment returns attachment metadata by id.
func (s *Store) GetAttachment(ctx context.Context, id int64) (*model.Attachment, bool, error) {
	var m AttachmentModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return attachmentFromModel(m), true, nil
}

// AttachmentsForMessage returns the attachments linked to a message in upload order.
func (s *Store) AttachmentsForMessage(ctx context.Context, messageID int64) ([]model.Attachment, error) {
	byMessage, err := s.AttachmentsForMessages(ctx, []int64{messageID})
	if err != nil {
		return nil, err
	}
	if items, ok := byMessage[messageID]; ok {
		return items, nil
	}
	return []model.Attachment{}, nil
}

// AttachmentsForMessages resolves attachments for many messages in one query.
func (s *Store) AttachmentsForMessages(ctx context.Context, messageIDs []int64) (map[int64][]model.Attachment, error) {
	out := make(map[int64][]model.Attachment)
	if len(messageIDs) == 0 {
		return out, nil
	}
	var rows []attachmentRow
	if err := s.db.WithContext(ctx).
		Table("attachments").
		Select("attachments.id, attachments.user_id, attachments.original_name, attachments.stored_key, " +
			"attachments.mime_type, attachments.size_bytes, attachments.extension, attachments.created_at, " +
			"attachment_links.message_id").
		Joins("JOIN attachment_links ON attachment_links.attachment_id = attachments.id").
		Where("attachment_links.message_id IN ?", messageIDs).
		Order("attachments.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load message attachments: %w", err)
	}
	for _, row := range rows {
		out[row.MessageID] = append(out[row.MessageID], model.Attachment{
			ID:           row.ID,
			UserID:       row.UserID,
			OriginalName: row.OriginalName,
			StoredKey:    row.StoredKey,
			MimeType:     row.MimeType,
			SizeBytes:    row.SizeBytes,
			Extension:    row.Extension,
			CreatedAt:    row.CreatedAt,
		})
	}
	return out, nil
}

type attachmentRow struct {
	ID           int64
	UserID       int64
	OriginalName string
	StoredKey    string
	MimeType     string
	SizeBytes    int64
	Extension    string
	CreatedAt    time.Time
	MessageID    int64
}

func attachmentFromModel(m AttachmentModel) *model.Attachment {
	return &model.Attachment{
		ID:           m.ID,
		UserID:       m.UserID,
		OriginalName: m.OriginalName,
		StoredKey:    m.StoredKey,
		MimeType:     m.MimeType,
		SizeBytes:    m.SizeBytes,
		Extension:    m.Extension,
		CreatedAt:    m.CreatedAt,
	}
}
