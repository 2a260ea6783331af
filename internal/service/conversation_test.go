package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

func TestArchiveIsIdempotent(t *testing.T) {
	env := newTestEnv(t, staticAgent("ok"))
	ctx := context.Background()
	u := env.user(t, "a@example.com")
	conv := env.conversation(t, u.ID)
	keep := env.conversation(t, u.ID)

	for i := 0; i < 2; i++ {
		if err := env.convs.Archive(ctx, u.ID, conv.ID); err != nil {
			t.Fatalf("archive #%d: %v", i+1, err)
		}
	}

	list, err := env.convs.List(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Conversations) != 1 || list.Conversations[0].ID != keep.ID {
		t.Fatalf("expected only the active conversation, got %+v", list.Conversations)
	}

	types := env.events.eventTypes()
	if len(types) != 1 || types[0] != model.EventTypeArchived {
		t.Fatalf("expected a single archived event, got %v", types)
	}
}

func TestRenameConversation(t *testing.T) {
	env := newTestEnv(t, staticAgent("ok"))
	ctx := context.Background()
	u := env.user(t, "a@example.com")
	conv := env.conversation(t, u.ID)

	title := "  Налоги  "
	renamed, err := env.convs.Rename(ctx, u.ID, conv.ID, &model.UpdateConversationRequest{Title: &title})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Title == nil || *renamed.Title != "Налоги" {
		t.Fatalf("expected trimmed title, got %v", renamed.Title)
	}

	blank := "   "
	cleared, err := env.convs.Rename(ctx, u.ID, conv.ID, &model.UpdateConversationRequest{Title: &blank})
	if err != nil {
		t.Fatalf("clear title: %v", err)
	}
	if cleared.Title != nil {
		t.Fatalf("expected cleared title, got %q", *cleared.Title)
	}

	if _, err := env.convs.Rename(ctx, u.ID, conv.ID, &model.UpdateConversationRequest{}); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("expected title required for a missing title, got %v", err)
	}
	if _, err := env.convs.Rename(ctx, u.ID, conv.ID, &model.UpdateConversationRequest{TitleSet: true}); err != nil {
		t.Fatalf("explicit null title should clear: %v", err)
	}

	long := strings.Repeat("x", MaxTitleLength+1)
	if _, err := env.convs.Rename(ctx, u.ID, conv.ID, &model.UpdateConversationRequest{Title: &long}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for long title, got %v", err)
	}
}

func TestCreateConversationWithTitle(t *testing.T) {
	env := newTestEnv(t, staticAgent("ok"))
	u := env.user(t, "a@example.com")

	title := "Первый"
	conv, err := env.convs.Create(context.Background(), u.ID, &model.CreateConversationRequest{Title: &title})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.Title == nil || *conv.Title != title {
		t.Fatalf("unexpected title %v", conv.Title)
	}
	if !conv.CreatedAt.Equal(conv.UpdatedAt) {
		t.Fatalf("new conversation should have updated_at == created_at")
	}
}
