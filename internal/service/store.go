// Package service implements the chat workflows on top of the store, the
// blob storage and the external agent.
package service

import (
	"context"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

// Store is the persistence the services need. *store.Store implements it.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, bool, error)
	FindUserByID(ctx context.Context, id int64) (*model.User, bool, error)

	CreateConversation(ctx context.Context, ownerID int64, title *string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*model.Conversation, bool, error)
	ListConversations(ctx context.Context, ownerID int64) ([]model.Conversation, error)
	RenameConversation(ctx context.Context, id int64, title *string) (*model.Conversation, error)
	ArchiveConversation(ctx context.Context, id int64) error
	TouchConversation(ctx context.Context, id int64) error
	SetTitleIfUnset(ctx context.Context, id int64, title string) (bool, error)

	AppendMessage(ctx context.Context, conversationID, userID int64, role model.Role, content string) (*model.Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)
	RecentHistory(ctx context.Context, conversationID int64, limit int) ([]model.Message, error)

	CreateAttachments(ctx context.Context, items []model.Attachment) ([]model.Attachment, error)
	LinkAttachment(ctx context.Context, messageID, attachmentID int64) error
	GetAttachment(ctx context.Context, id int64) (*model.Attachment, bool, error)
	AttachmentsForMessages(ctx context.Context, messageIDs []int64) (map[int64][]model.Attachment, error)
}

// EventPublisher receives stored turns and conversation events.
// *nats.Publisher implements it.
type EventPublisher interface {
	PublishTurn(ctx context.Context, msg *model.Message) error
	PublishEvent(ctx context.Context, event *model.ConversationEvent) error
}

// NopPublisher drops every event. Used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishTurn(context.Context, *model.Message) error { return nil }

func (NopPublisher) PublishEvent(context.Context, *model.ConversationEvent) error { return nil }
