package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

// PreviewLength is the number of characters of the latest message shown in listings.
const PreviewLength = 80

// CreateConversation starts a new, unarchived conversation.
func (s *Store) CreateConversation(ctx context.Context, ownerID int64, title *string) (*model.Conversation, error) {
	ts := now()
	m := ConversationModel{
		UserID:    ownerID,
		Title:     title,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translateError(err, "conversations_pkey")
	}
	return conversationFromModel(m), nil
}

// GetConversation returns a conversation by id, archived or not. Callers
// decide visibility; see the ownership guard.
func (s *Store) GetConversation(ctx context.Context, id int64) (*model.Conversation, bool, error) {
	var m ConversationModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return conversationFromModel(m), true, nil
}

// ListConversations returns the owner's active conversations, most recently
// updated first, each carrying a preview of its latest message.
func (s *Store) ListConversations(ctx context.Context, ownerID int64) ([]model.Conversation, error) {
	db := s.db.WithContext(ctx)

	var models []ConversationModel
	if err := db.Where("user_id = ? AND archived_at IS NULL", ownerID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if len(models) == 0 {
		return []model.Conversation{}, nil
	}

	ids := make([]int64, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}

	var latest []struct {
		ConversationID int64
		Content        string
	}
	if err := db.Model(&MessageModel{}).
		Select("conversation_id, content").
		Where("id IN (?)", db.Model(&MessageModel{}).
			Select("MAX(id)").
			Where("conversation_id IN ?", ids).
			Group("conversation_id")).
		Scan(&latest).Error; err != nil {
		return nil, fmt.Errorf("load previews: %w", err)
	}
	previews := make(map[int64]string, len(latest))
	for _, l := range latest {
		previews[l.ConversationID] = l.Content
	}

	items := make([]model.Conversation, 0, len(models))
	for _, m := range models {
		c := conversationFromModel(m)
		if content, ok := previews[m.ID]; ok {
			p := truncateRunes(content, PreviewLength)
			c.Preview = &p
		}
		items = append(items, *c)
	}
	return items, nil
}

// RenameConversation sets or clears (nil) the title.
func (s *Store) RenameConversation(ctx context.Context, id int64, title *string) (*model.Conversation, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&ConversationModel{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return nil, fmt.Errorf("rename conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, model.ErrNotFound
	}
	conv, ok, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrNotFound
	}
	return conv, nil
}

// ArchiveConversation soft-deletes a conversation. Archiving twice is a no-op.
func (s *Store) ArchiveConversation(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Model(&ConversationModel{}).
		Where("id = ? AND archived_at IS NULL", id).
		Update("archived_at", now()).Error
}

// TouchConversation advances updated_at.
func (s *Store) TouchConversation(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.advanceUpdatedAt(tx, id)
	})
}

// SetTitleIfUnset sets the title only when none is present and reports
// whether it did. The check and the write are a single statement.
func (s *Store) SetTitleIfUnset(ctx context.Context, id int64, title string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&ConversationModel{}).
		Where("id = ? AND (title IS NULL OR title = '')", id).
		Update("title", title)
	if res.Error != nil {
		return false, fmt.Errorf("set title: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// advanceUpdatedAt moves updated_at strictly forward, even when the clock
// has not ticked since the previous write.
func (s *Store) advanceUpdatedAt(tx *gorm.DB, id int64) error {
	q := tx.Select("id", "updated_at")
	if s.driver == DriverPostgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m ConversationModel
	if err := q.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrNotFound
		}
		return err
	}
	next := now()
	if !next.After(m.UpdatedAt) {
		next = m.UpdatedAt.Add(time.Microsecond)
	}
	return tx.Model(&ConversationModel{}).Where("id = ?", id).Update("updated_at", next).Error
}

func conversationFromModel(m ConversationModel) *model.Conversation {
	return &model.Conversation{
		ID:         m.ID,
		UserID:     m.UserID,
		Title:      m.Title,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		ArchivedAt: m.ArchivedAt,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
