package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWrite(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	path, err := store.Write(context.Background(), "abc.png", []byte("data"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, []byte("data")) {
		t.Fatalf("content mismatch: %q", got)
	}
	if filepath.Dir(path) != store.BasePath() {
		t.Fatalf("file written outside base path: %s", path)
	}
}

func TestFileStoreWriteRefusesOverwrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if _, err := store.Write(context.Background(), "same.png", []byte("one")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := store.Write(context.Background(), "same.png", []byte("two")); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "a.png", want: "a.png"},
		{key: "/nested/a.png", want: "nested/a.png"},
		{key: `nested\a.png`, want: "nested/a.png"},
		{key: "../escape.png", wantErr: true},
		{key: "..", wantErr: true},
		{key: "  ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.key)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q) expected error, got %q", tc.key, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("sanitizeKey(%q) error: %v", tc.key, err)
		}
		if got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestFileStoreWriteHonorsCanceledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "x.png", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	entries, _ := os.ReadDir(store.BasePath())
	if len(entries) != 0 {
		t.Fatalf("expected no files, got %d", len(entries))
	}
}
