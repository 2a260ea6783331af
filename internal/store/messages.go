package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

// DefaultMessageLimit caps transcript listings when no limit is given.
const DefaultMessageLimit = 200

// AppendMessage stores a turn and advances the conversation's updated_at in
// the same transaction. Ids come from the database sequence, so they grow
// monotonically across all conversations.
func (s *Store) AppendMessage(ctx context.Context, conversationID, userID int64, role model.Role, content string) (*model.Message, error) {
	if !role.Valid() {
		return nil, model.Validationf("unknown role %q", role)
	}
	m := MessageModel{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           string(role),
		Content:        content,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.advanceUpdatedAt(tx, conversationID); err != nil {
			return err
		}
		m.CreatedAt = now()
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, translateError(err, "messages_pkey")
	}
	return messageFromModel(m), nil
}

// ListMessages returns up to limit messages in ascending id order, the
// oldest first. A non-positive limit means DefaultMessageLimit.
func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	var models []MessageModel
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]model.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, *messageFromModel(m))
	}
	return msgs, nil
}

// RecentHistory returns the last limit messages of a conversation in
// chronological order. It takes the newest rows by descending id and then
// reverses them, so the window always ends at the latest turn.
func (s *Store) RecentHistory(ctx context.Context, conversationID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	msgs := make([]model.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, *messageFromModel(models[i]))
	}
	return msgs, nil
}

func messageFromModel(m MessageModel) *model.Message {
	return &model.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           model.Role(m.Role),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}
