package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/capitalize-ai/agent-chat/internal/agent"
	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/internal/storage"
	"github.com/capitalize-ai/agent-chat/internal/store"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

type testEnv struct {
	store    *store.Store
	blobs    *storage.LocalStore
	guard    *Guard
	convs    *ConversationService
	atts     *AttachmentService
	chat     *ChatService
	accounts *AccountService
	events   *recordingPublisher
}

func newTestEnv(t *testing.T, agentClient agent.Client) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := store.Open(store.Config{
		Driver: store.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name),
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}

	log := logger.NewNop()
	events := &recordingPublisher{}
	guard := NewGuard(st)
	atts := NewAttachmentService(st, guard, blobs, log)
	return &testEnv{
		store:    st,
		blobs:    blobs,
		guard:    guard,
		convs:    NewConversationService(st, guard, events, log),
		atts:     atts,
		chat:     NewChatService(st, guard, atts, agentClient, events, ChatConfig{}, log),
		accounts: NewAccountService(st, nil, bcrypt.MinCost, log),
		events:   events,
	}
}

func (e *testEnv) user(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), email, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *testEnv) conversation(t *testing.T, ownerID int64) *model.Conversation {
	t.Helper()
	c, err := e.convs.Create(context.Background(), ownerID, &model.CreateConversationRequest{})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return c
}

// blobCount returns the number of files under the blob root.
func (e *testEnv) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(e.blobs.Root(), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk blobs: %v", err)
	}
	return n
}

func memFile(name, contentType string, data []byte) FileUpload {
	return FileUpload{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// agentFunc adapts a function to agent.Client.
type agentFunc func(ctx context.Context, req *agent.Request) (string, error)

func (f agentFunc) Reply(ctx context.Context, req *agent.Request) (string, error) {
	return f(ctx, req)
}

func staticAgent(reply string) agentFunc {
	return func(context.Context, *agent.Request) (string, error) { return reply, nil }
}

type recordingPublisher struct {
	mu     sync.Mutex
	turns  []model.Message
	events []model.ConversationEvent
}

func (p *recordingPublisher) PublishTurn(_ context.Context, msg *model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, *msg)
	return nil
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event *model.ConversationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) eventTypes() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
