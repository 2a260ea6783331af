package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

// MaxTitleLength is the longest title accepted, in characters.
const MaxTitleLength = 255

// ErrTitleRequired is returned by Rename when the request has no title field.
var ErrTitleRequired = fmt.Errorf("%w: title is required", model.ErrValidation)

// ConversationService handles conversation operations.
type ConversationService struct {
	store  Store
	guard  *Guard
	events EventPublisher
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(store Store, guard *Guard, events EventPublisher, log *logger.Logger) *ConversationService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ConversationService{
		store:  store,
		guard:  guard,
		events: events,
		logger: log,
	}
}

// Create creates a new conversation.
func (s *ConversationService) Create(ctx context.Context, callerID int64, req *model.CreateConversationRequest) (*model.Conversation, error) {
	var title *string
	if req != nil {
		t, err := normalizeTitle(req.Title)
		if err != nil {
			return nil, err
		}
		title = t
	}

	conv, err := s.store.CreateConversation(ctx, callerID, title)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created",
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("user_id", callerID),
	)

	return conv, nil
}

// List returns the caller's active conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, callerID int64) (*model.ListConversationsResponse, error) {
	items, err := s.store.ListConversations(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return &model.ListConversationsResponse{Conversations: items}, nil
}

// Rename sets the title. A null or blank title clears it; a request without
// a title fails with ErrTitleRequired.
func (s *ConversationService) Rename(ctx context.Context, callerID, conversationID int64, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	if err := s.guard.AssertOwned(ctx, ResourceConversation, conversationID, callerID); err != nil {
		return nil, err
	}
	if req == nil || (req.Title == nil && !req.TitleSet) {
		return nil, ErrTitleRequired
	}

	title, err := normalizeTitle(req.Title)
	if err != nil {
		return nil, err
	}

	conv, err := s.store.RenameConversation(ctx, conversationID, title)
	if err != nil {
		return nil, fmt.Errorf("rename conversation: %w", err)
	}
	return conv, nil
}

// Archive soft-deletes a conversation. Archiving an archived conversation
// succeeds without change.
func (s *ConversationService) Archive(ctx context.Context, callerID, conversationID int64) error {
	conv, err := s.guard.conversation(ctx, conversationID, callerID, true)
	if err != nil {
		return err
	}
	if conv.Archived() {
		return nil
	}

	if err := s.store.ArchiveConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}

	s.logger.Info("conversation archived",
		zap.Int64("conversation_id", conversationID),
		zap.Int64("user_id", callerID),
	)

	event := &model.ConversationEvent{
		ConversationID: conversationID,
		UserID:         callerID,
		Type:           model.EventTypeArchived,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish archive event", zap.Error(err))
	}
	return nil
}

// Messages returns the transcript of an active conversation with each
// message's attachment projections.
func (s *ConversationService) Messages(ctx context.Context, callerID, conversationID int64, limit int) (*model.ListMessagesResponse, error) {
	if err := s.guard.AssertOwned(ctx, ResourceConversation, conversationID, callerID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(msgs) == 0 {
		return &model.ListMessagesResponse{Messages: []model.Message{}}, nil
	}

	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	byMessage, err := s.store.AttachmentsForMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load attachments: %w", err)
	}
	for i := range msgs {
		msgs[i].Attachments = views(byMessage[msgs[i].ID])
	}

	return &model.ListMessagesResponse{Messages: msgs}, nil
}

func normalizeTitle(title *string) (*string, error) {
	if title == nil {
		return nil, nil
	}
	t := strings.TrimSpace(*title)
	if t == "" {
		return nil, nil
	}
	if !utf8.ValidString(t) {
		return nil, model.Validationf("title must be valid UTF-8")
	}
	if utf8.RuneCountInString(t) > MaxTitleLength {
		return nil, model.Validationf("title exceeds %d characters", MaxTitleLength)
	}
	return &t, nil
}

func views(items []model.Attachment) []model.AttachmentView {
	if len(items) == 0 {
		return nil
	}
	out := make([]model.AttachmentView, 0, len(items))
	for i := range items {
		out = append(out, items[i].View())
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
