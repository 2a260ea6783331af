package service

import (
	"context"
	"fmt"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

// ResourceKind selects what AssertOwned checks.
type ResourceKind int

const (
	// ResourceConversation is an active (unarchived) conversation.
	ResourceConversation ResourceKind = iota
	// ResourceAnyConversation includes archived conversations; archiving uses it.
	ResourceAnyConversation
	// ResourceAttachment is an uploaded file.
	ResourceAttachment
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceConversation, ResourceAnyConversation:
		return "conversation"
	case ResourceAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// Guard checks that a resource exists and belongs to the caller. Absent and
// foreign resources both fail with model.ErrNotFound.
type Guard struct {
	store Store
}

// NewGuard creates an ownership guard.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// AssertOwned fails with model.ErrNotFound unless the caller owns the resource.
func (g *Guard) AssertOwned(ctx context.Context, kind ResourceKind, id, callerID int64) error {
	switch kind {
	case ResourceConversation:
		_, err := g.Conversation(ctx, id, callerID)
		return err
	case ResourceAnyConversation:
		_, err := g.conversation(ctx, id, callerID, true)
		return err
	case ResourceAttachment:
		_, err := g.Attachment(ctx, id, callerID)
		return err
	default:
		return fmt.Errorf("unknown resource kind %d", kind)
	}
}

// Conversation returns the caller's active conversation.
func (g *Guard) Conversation(ctx context.Context, id, callerID int64) (*model.Conversation, error) {
	return g.conversation(ctx, id, callerID, false)
}

func (g *Guard) conversation(ctx context.Context, id, callerID int64, includeArchived bool) (*model.Conversation, error) {
	if id <= 0 || callerID <= 0 {
		return nil, model.ErrNotFound
	}
	conv, ok, err := g.store.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !ok || conv.UserID != callerID {
		return nil, model.ErrNotFound
	}
	if conv.Archived() && !includeArchived {
		return nil, model.ErrNotFound
	}
	return conv, nil
}

// Attachment returns the caller's attachment.
func (g *Guard) Attachment(ctx context.Context, id, callerID int64) (*model.Attachment, error) {
	if id <= 0 || callerID <= 0 {
		return nil, model.ErrNotFound
	}
	att, ok, err := g.store.GetAttachment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load attachment: %w", err)
	}
	if !ok || att.UserID != callerID {
		return nil, model.ErrNotFound
	}
	return att, nil
}
