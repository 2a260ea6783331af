package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-chat/internal/agent"
	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
	"github.com/capitalize-ai/agent-chat/pkg/metrics"
)

const tracerName = "github.com/capitalize-ai/agent-chat/internal/service"

const (
	// DefaultHistoryWindow is how many recent turns the agent sees.
	DefaultHistoryWindow = 20
	// AutoTitleLength is the number of characters taken for an automatic title.
	AutoTitleLength = 60
	// MaxMessageLength bounds the text of a single turn, in characters.
	MaxMessageLength = 100000
)

var (
	// ErrAgentNotConfigured is returned by Send when no agent is available.
	ErrAgentNotConfigured = errors.New("agent webhook url is not configured")
	// ErrMessageRequired is returned when a turn has neither text nor files.
	ErrMessageRequired = fmt.Errorf("%w: message text or files are required", model.ErrValidation)
)

// SendRequest is one inbound user turn.
type SendRequest struct {
	ConversationID int64
	Message        string
	Files          []FileUpload
}

// ChatService runs the chat workflow for a single user turn.
type ChatService struct {
	store         Store
	guard         *Guard
	attachments   *AttachmentService
	agent         agent.Client
	events        EventPublisher
	historyWindow int
	logger        *logger.Logger
}

// ChatConfig tunes the orchestrator.
type ChatConfig struct {
	HistoryWindow int
}

// NewChatService creates the chat orchestrator. A nil agent client makes
// every Send fail with ErrAgentNotConfigured.
func NewChatService(
	store Store,
	guard *Guard,
	attachments *AttachmentService,
	agentClient agent.Client,
	events EventPublisher,
	cfg ChatConfig,
	log *logger.Logger,
) *ChatService {
	if events == nil {
		events = NopPublisher{}
	}
	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &ChatService{
		store:         store,
		guard:         guard,
		attachments:   attachments,
		agent:         agentClient,
		events:        events,
		historyWindow: window,
		logger:        log,
	}
}

func (s *ChatService) agentConfigured() bool {
	if s.agent == nil {
		return false
	}
	if c, ok := s.agent.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// Send stores the user turn, asks the agent for a reply and stores it.
//
// Attachments are ingested before the user turn is stored, so a rejected or
// failed upload leaves no message. Once the user turn is stored it survives
// any later failure, and the returned response carries it alongside the
// error. Agent failures match model.ErrUpstream.
func (s *ChatService) Send(ctx context.Context, callerID int64, req SendRequest) (*model.ChatResponse, error) {
	if !s.agentConfigured() {
		return nil, ErrAgentNotConfigured
	}

	if _, err := s.guard.Conversation(ctx, req.ConversationID, callerID); err != nil {
		return nil, err
	}

	text, err := normalizeTurn(req.Message, len(req.Files))
	if err != nil {
		return nil, err
	}
	if err := s.attachments.Validate(req.Files, false); err != nil {
		s.attachments.rejected(err, len(req.Files))
		return nil, err
	}

	log := s.logger.With(
		zap.Int64("conversation_id", req.ConversationID),
		zap.Int64("user_id", callerID),
	)

	// Files are stored before the turn so a failed upload leaves no
	// message behind. They stay unlinked if the turn cannot be stored.
	stored, err := s.attachments.Ingest(ctx, callerID, req.Files)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.store.AppendMessage(ctx, req.ConversationID, callerID, model.RoleUser, text)
	if err != nil {
		return nil, fmt.Errorf("store user turn: %w", err)
	}
	metrics.RecordMessage(string(model.RoleUser))
	s.publishTurn(ctx, log, userMsg)

	for _, att := range stored {
		if err := s.store.LinkAttachment(ctx, userMsg.ID, att.ID); err != nil {
			return &model.ChatResponse{UserMessage: userMsg}, fmt.Errorf("link attachment %d: %w", att.ID, err)
		}
	}
	userMsg.Attachments = views(stored)

	// The agent call and everything after it run to completion even if the
	// client goes away.
	ctx = context.WithoutCancel(ctx)

	history, err := s.store.RecentHistory(ctx, req.ConversationID, s.historyWindow)
	if err != nil {
		return &model.ChatResponse{UserMessage: userMsg}, fmt.Errorf("load history: %w", err)
	}

	agentReq := &agent.Request{
		Message:        text,
		UserID:         callerID,
		ConversationID: req.ConversationID,
		History:        historyTurns(history),
		Attachments:    s.agentAttachments(ctx, log, stored),
	}

	reply, err := s.callAgent(ctx, agentReq)
	if err != nil {
		log.Warn("agent request failed", zap.Error(err))
		s.publishFailure(ctx, log, req.ConversationID, callerID, err)
		if !errors.Is(err, model.ErrUpstream) {
			err = &model.UpstreamError{Err: err}
		}
		return &model.ChatResponse{UserMessage: userMsg}, err
	}

	assistantMsg, err := s.store.AppendMessage(ctx, req.ConversationID, callerID, model.RoleAssistant, reply)
	if err != nil {
		return &model.ChatResponse{UserMessage: userMsg}, fmt.Errorf("store assistant turn: %w", err)
	}
	metrics.RecordMessage(string(model.RoleAssistant))
	s.publishTurn(ctx, log, assistantMsg)

	if err := s.store.TouchConversation(ctx, req.ConversationID); err != nil {
		return &model.ChatResponse{Reply: reply, UserMessage: userMsg}, fmt.Errorf("touch conversation: %w", err)
	}
	if title := truncateRunes(text, AutoTitleLength); title != "" {
		if _, err := s.store.SetTitleIfUnset(ctx, req.ConversationID, title); err != nil {
			return &model.ChatResponse{Reply: reply, UserMessage: userMsg}, fmt.Errorf("set title: %w", err)
		}
	}

	log.Info("turn completed",
		zap.Int64("user_message_id", userMsg.ID),
		zap.Int64("assistant_message_id", assistantMsg.ID),
		zap.Int("attachments", len(stored)),
	)

	return &model.ChatResponse{Reply: reply, UserMessage: userMsg}, nil
}

func (s *ChatService) callAgent(ctx context.Context, req *agent.Request) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.reply", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("conversation_id", req.ConversationID),
		attribute.Int("history", len(req.History)),
		attribute.Int("attachments", len(req.Attachments)),
	)

	start := time.Now()
	reply, err := s.agent.Reply(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent request failed")
	}
	metrics.RecordAgentRequest(status, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		reply = agent.EmptyReply
	}
	return reply, nil
}

// agentAttachments describes the stored files for the agent. Only images
// carry their bytes, as a data URL.
func (s *ChatService) agentAttachments(ctx context.Context, log *logger.Logger, stored []model.Attachment) []agent.Attachment {
	if len(stored) == 0 {
		return nil
	}
	out := make([]agent.Attachment, 0, len(stored))
	for i := range stored {
		att := &stored[i]
		entry := agent.Attachment{
			Name: att.OriginalName,
			Type: att.MimeType,
			Size: att.SizeBytes,
		}
		if att.IsImage() {
			data, err := s.attachments.readAll(ctx, att)
			if err != nil {
				log.Warn("failed to read image for agent", zap.Int64("attachment_id", att.ID), zap.Error(err))
			} else {
				entry.Base64 = "data:" + att.MimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
			}
		}
		out = append(out, entry)
	}
	return out
}

func (s *ChatService) publishTurn(ctx context.Context, log *logger.Logger, msg *model.Message) {
	if err := s.events.PublishTurn(ctx, msg); err != nil {
		log.Warn("failed to publish turn", zap.Int64("message_id", msg.ID), zap.Error(err))
	}
}

func (s *ChatService) publishFailure(ctx context.Context, log *logger.Logger, conversationID, userID int64, cause error) {
	event := &model.ConversationEvent{
		ConversationID: conversationID,
		UserID:         userID,
		Type:           model.EventTypeUpstreamFailure,
		Reason:         cause.Error(),
		CreatedAt:      time.Now().UTC(),
	}
	var upErr *model.UpstreamError
	if errors.As(cause, &upErr) && upErr.Status != 0 {
		event.Metadata = map[string]any{"status": upErr.Status}
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		log.Warn("failed to publish upstream failure", zap.Error(err))
	}
}

// normalizeTurn trims the text and substitutes a placeholder for a
// files-only turn, so a stored user message is never empty.
func normalizeTurn(message string, files int) (string, error) {
	if !utf8.ValidString(message) {
		return "", model.Validationf("message must be valid UTF-8")
	}
	text := strings.TrimSpace(message)
	if text == "" {
		if files == 0 {
			return "", ErrMessageRequired
		}
		return fmt.Sprintf("[%d файл(ов)]", files), nil
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", model.Validationf("message exceeds %d characters", MaxMessageLength)
	}
	return text, nil
}

func historyTurns(msgs []model.Message) []agent.HistoryTurn {
	turns := make([]agent.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, agent.HistoryTurn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}
