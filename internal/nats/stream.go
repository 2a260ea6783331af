package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

const (
	// StreamName is the name of the chat activity stream.
	StreamName = "CHAT"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// Publisher mirrors stored turns and conversation events onto JetStream.
// The relational store stays the source of truth; the stream is a feed for
// downstream consumers.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream creates the chat stream if it does not exist.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat turns and conversation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a stored turn.
func MessageSubject(userID, conversationID int64, role model.Role) string {
	return fmt.Sprintf("%s.%d.%d.msg.%s", SubjectPrefix, userID, conversationID, role)
}

// EventSubject returns the subject for a conversation event.
func EventSubject(userID, conversationID int64, eventType model.EventType) string {
	return fmt.Sprintf("%s.%d.%d.event.%s", SubjectPrefix, userID, conversationID, eventType)
}

// PublishTurn publishes a stored message.
func (p *Publisher) PublishTurn(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	subject := MessageSubject(msg.UserID, msg.ConversationID, msg.Role)
	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishEvent publishes a conversation event.
func (p *Publisher) PublishEvent(ctx context.Context, event *model.ConversationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := EventSubject(event.UserID, event.ConversationID, event.Type)
	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
