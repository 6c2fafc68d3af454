package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorePutOpenDelete(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()

	first, err := st.Put(ctx, bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("put first: %v", err)
	}
	if first.Key == "" || first.SizeBytes != 5 {
		t.Fatalf("unexpected put result: %#v", first)
	}

	second, err := st.Put(ctx, bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("put second: %v", err)
	}
	if first.Key == second.Key {
		t.Fatalf("expected distinct keys for identical content, got %q twice", first.Key)
	}

	rc, err := st.Open(ctx, first.Key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", string(data))
	}

	if err := st.Delete(ctx, first.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, first.Key); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	if _, err := st.Open(ctx, first.Key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	rc, err = st.Open(ctx, second.Key)
	if err != nil {
		t.Fatalf("second blob should survive first delete: %v", err)
	}
	rc.Close()
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../outside", "objects/../../x", "objects//a"} {
		if _, err := st.Open(context.Background(), key); err == nil || errors.Is(err, ErrNotFound) {
			t.Fatalf("expected validation error for %q, got %v", key, err)
		}
	}
}

func TestLocalStorePutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	st, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	if _, err := st.Put(context.Background(), strings.NewReader("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "tmp"))
	if err != nil {
		t.Fatalf("read tmp: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty tmp dir, got %d entries", len(entries))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestLocalStorePutPropagatesReaderError(t *testing.T) {
	root := t.TempDir()
	st, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	if _, err := st.Put(context.Background(), failingReader{}); err == nil {
		t.Fatal("expected reader error")
	}
	entries, _ := os.ReadDir(filepath.Join(root, "tmp"))
	if len(entries) != 0 {
		t.Fatalf("expected temp file cleanup, got %d entries", len(entries))
	}
}

func TestLocalStorePutHonorsCanceledContext(t *testing.T) {
	st, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := st.Put(ctx, strings.NewReader("payload")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
