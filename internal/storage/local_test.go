package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorePutOpenDelete(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()
	key := "7/2026-10/abc.txt"

	n, err := ls.Put(ctx, key, strings.NewReader("hello"), 5, "text/plain")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes written, got %d", n)
	}

	rc, err := ls.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("unexpected content %q", data)
	}

	entries, err := os.ReadDir(filepath.Join(ls.Root(), "7", "2026-10"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}

	if err := ls.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ls.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing key should succeed: %v", err)
	}
	if _, err := ls.Open(ctx, key); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestCleanKeyRejectsEscapes(t *testing.T) {
	bad := []string{"", "/etc/passwd", "../x", "a/../../x", "a/./b", "a\\b", "..", "."}
	for _, key := range bad {
		if _, err := CleanKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if got, err := CleanKey("1/2026-10/f.png"); err != nil || got != "1/2026-10/f.png" {
		t.Fatalf("valid key rejected: %q %v", got, err)
	}
}
