package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	s, err := Open(Config{Driver: DriverSQLite, DSN: dsn}, logger.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := openTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func mustUser(t *testing.T, s *Store, email string) *model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), email, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func mustConversation(t *testing.T, s *Store, ownerID int64) *model.Conversation {
	t.Helper()
	c, err := s.CreateConversation(context.Background(), ownerID, nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return c
}

func TestMigrateIsRerunnable(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestMigrateUpgradesPartialSchema(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// An older schema: no archived_at column, no active-conversation index,
	// no message or attachment tables.
	legacy := []string{
		"CREATE TABLE `users` (`id` integer PRIMARY KEY AUTOINCREMENT,`email` text NOT NULL,`password_hash` text NOT NULL,`created_at` datetime NOT NULL)",
		"CREATE TABLE `conversations` (`id` integer PRIMARY KEY AUTOINCREMENT,`user_id` integer NOT NULL,`title` text,`created_at` datetime NOT NULL,`updated_at` datetime NOT NULL," +
			"CONSTRAINT `fk_conversations_user` FOREIGN KEY (`user_id`) REFERENCES `users`(`id`) ON DELETE CASCADE)",
	}
	for _, stmt := range legacy {
		if err := s.db.Exec(stmt).Error; err != nil {
			t.Fatalf("create legacy table: %v", err)
		}
	}
	created := now()
	if err := s.db.Exec(`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)`,
		"old@example.com", "hash", created).Error; err != nil {
		t.Fatalf("insert legacy user: %v", err)
	}
	if err := s.db.Exec(`INSERT INTO conversations (user_id, title, created_at, updated_at) VALUES (1, ?, ?, ?)`,
		"Старый диалог", created, created).Error; err != nil {
		t.Fatalf("insert legacy conversation: %v", err)
	}

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate legacy schema: %v", err)
	}

	migrator := s.db.Migrator()
	if !migrator.HasColumn(&ConversationModel{}, "ArchivedAt") {
		t.Fatal("archived_at column was not added")
	}
	if !migrator.HasIndex(&ConversationModel{}, "idx_conversations_active") {
		t.Fatal("active conversations index was not created")
	}
	for _, table := range []any{&MessageModel{}, &AttachmentModel{}, &AttachmentLinkModel{}} {
		if !migrator.HasTable(table) {
			t.Fatalf("table for %T was not created", table)
		}
	}

	list, err := s.ListConversations(ctx, 1)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 1 || list[0].Title == nil || *list[0].Title != "Старый диалог" {
		t.Fatalf("legacy conversation lost: %+v", list)
	}
	if _, err := s.AppendMessage(ctx, list[0].ID, 1, model.RoleUser, "снова здесь"); err != nil {
		t.Fatalf("append to legacy conversation: %v", err)
	}
	if err := s.ArchiveConversation(ctx, list[0].ID); err != nil {
		t.Fatalf("archive legacy conversation: %v", err)
	}

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUser(t, s, "a@example.com")

	_, err := s.CreateUser(ctx, "a@example.com", "other")
	if !errors.Is(err, model.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if !errors.Is(err, model.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}

	u, ok, err := s.FindUserByEmail(ctx, "a@example.com")
	if err != nil || !ok {
		t.Fatalf("find user: ok=%v err=%v", ok, err)
	}
	if u.PasswordHash != "hash" {
		t.Fatalf("original user was overwritten: %q", u.PasswordHash)
	}
	if _, ok, _ := s.FindUserByEmail(ctx, "missing@example.com"); ok {
		t.Fatal("expected unknown email to be absent")
	}
}

func TestMessagesOrderedByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	c := mustConversation(t, s, u.ID)

	for i := 0; i < 5; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		if _, err := s.AppendMessage(ctx, c.ID, u.ID, role, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := s.ListMessages(ctx, c.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("messages out of order at %d", i)
		}
		if msgs[i].Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("unexpected content at %d: %q", i, msgs[i].Content)
		}
	}

	limited, err := s.ListMessages(ctx, c.ID, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[0].Content != "m0" {
		t.Fatalf("limit should keep the oldest messages, got %+v", limited)
	}
}

func TestAppendMessageRejectsUnknownRole(t *testing.T) {
	s := newTestStore(t)
	u := mustUser(t, s, "a@example.com")
	c := mustConversation(t, s, u.ID)

	_, err := s.AppendMessage(context.Background(), c.ID, u.ID, model.Role("system"), "x")
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAppendMessageMissingConversation(t *testing.T) {
	s := newTestStore(t)
	u := mustUser(t, s, "a@example.com")

	_, err := s.AppendMessage(context.Background(), 9999, u.ID, model.RoleUser, "x")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecentHistoryReturnsLatestWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	c := mustConversation(t, s, u.ID)

	for i := 0; i < 25; i++ {
		if _, err := s.AppendMessage(ctx, c.ID, u.ID, model.RoleUser, fmt.Sprintf("m%02d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	window, err := s.RecentHistory(ctx, c.ID, 20)
	if err != nil {
		t.Fatalf("recent history: %v", err)
	}
	if len(window) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(window))
	}
	if window[0].Content != "m05" || window[19].Content != "m24" {
		t.Fatalf("unexpected window bounds: %q..%q", window[0].Content, window[19].Content)
	}

	empty, err := s.RecentHistory(ctx, c.ID, 0)
	if err != nil {
		t.Fatalf("recent history zero: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty window, got %d", len(empty))
	}
}

func TestListConversationsOrderAndPreview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	other := mustUser(t, s, "b@example.com")

	first := mustConversation(t, s, u.ID)
	second := mustConversation(t, s, u.ID)
	mustConversation(t, s, other.ID)

	long := strings.Repeat("я", 100)
	if _, err := s.AppendMessage(ctx, first.ID, u.ID, model.RoleUser, long); err != nil {
		t.Fatalf("append: %v", err)
	}

	items, err := s.ListConversations(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(items))
	}
	if items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("expected most recently updated first, got %d,%d", items[0].ID, items[1].ID)
	}
	if items[0].Preview == nil || len([]rune(*items[0].Preview)) != PreviewLength {
		t.Fatalf("expected %d-rune preview, got %v", PreviewLength, items[0].Preview)
	}
	if items[1].Preview != nil {
		t.Fatalf("expected nil preview for empty conversation, got %q", *items[1].Preview)
	}
	if !items[0].UpdatedAt.After(first.UpdatedAt) {
		t.Fatal("appending a message should advance updated_at")
	}
}

func TestArchiveConversationIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	c := mustConversation(t, s, u.ID)

	if err := s.ArchiveConversation(ctx, c.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, ok, err := s.GetConversation(ctx, c.ID)
	if err != nil || !ok {
		t.Fatalf("get archived: ok=%v err=%v", ok, err)
	}
	if !got.Archived() {
		t.Fatal("expected archived conversation")
	}
	stamp := *got.ArchivedAt

	if err := s.ArchiveConversation(ctx, c.ID); err != nil {
		t.Fatalf("second archive: %v", err)
	}
	again, _, _ := s.GetConversation(ctx, c.ID)
	if !again.ArchivedAt.Equal(stamp) {
		t.Fatalf("second archive moved archived_at: %v -> %v", stamp, *again.ArchivedAt)
	}

	items, err := s.ListConversations(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("archived conversation should not be listed, got %d", len(items))
	}
}

func TestRenameAndSetTitleIfUnset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	c := mustConversation(t, s, u.ID)

	set, err := s.SetTitleIfUnset(ctx, c.ID, "first")
	if err != nil || !set {
		t.Fatalf("set title: set=%v err=%v", set, err)
	}
	set, err = s.SetTitleIfUnset(ctx, c.ID, "second")
	if err != nil {
		t.Fatalf("set title again: %v", err)
	}
	if set {
		t.Fatal("title should only be set once")
	}

	renamed, err := s.RenameConversation(ctx, c.ID, nil)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Title != nil {
		t.Fatalf("expected cleared title, got %q", *renamed.Title)
	}

	if _, err := s.RenameConversation(ctx, 9999, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLinkAttachmentPolicy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")
	c := mustConversation(t, s, u.ID)

	m1, err := s.AppendMessage(ctx, c.ID, u.ID, model.RoleUser, "one")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	m2, err := s.AppendMessage(ctx, c.ID, u.ID, model.RoleUser, "two")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	att, err := s.CreateAttachment(ctx, u.ID, "photo.png", "1/2026-10/a.png", "image/png", 10, ".png")
	if err != nil {
		t.Fatalf("create attachment: %v", err)
	}

	if err := s.LinkAttachment(ctx, m1.ID, att.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := s.LinkAttachment(ctx, m1.ID, att.ID); err != nil {
		t.Fatalf("relinking the same pair should succeed: %v", err)
	}
	if err := s.LinkAttachment(ctx, m2.ID, att.ID); !errors.Is(err, model.ErrAttachmentLinked) {
		t.Fatalf("expected attachment linked error, got %v", err)
	}

	byMessage, err := s.AttachmentsForMessages(ctx, []int64{m1.ID, m2.ID})
	if err != nil {
		t.Fatalf("attachments for messages: %v", err)
	}
	if len(byMessage[m1.ID]) != 1 || byMessage[m1.ID][0].StoredKey != "1/2026-10/a.png" {
		t.Fatalf("unexpected attachments for m1: %+v", byMessage[m1.ID])
	}
	if len(byMessage[m2.ID]) != 0 {
		t.Fatalf("m2 should have no attachments, got %d", len(byMessage[m2.ID]))
	}

	none, err := s.AttachmentsForMessage(ctx, m2.ID)
	if err != nil {
		t.Fatalf("attachments for message: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}
}

func TestCreateAttachmentsIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "a@example.com")

	_, err := s.CreateAttachments(ctx, []model.Attachment{
		{UserID: u.ID, OriginalName: "a.txt", StoredKey: "dup", MimeType: "text/plain", SizeBytes: 1, Extension: ".txt"},
		{UserID: u.ID, OriginalName: "b.txt", StoredKey: "dup", MimeType: "text/plain", SizeBytes: 1, Extension: ".txt"},
	})
	if !errors.Is(err, model.ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}

	var count int64
	if err := s.db.Model(&AttachmentModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows after failed batch, got %d", count)
	}
}
