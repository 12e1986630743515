package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const pngMagic = "\x89PNG\r\n\x1a\n"

func fakePNG(body string) []byte {
	return append([]byte(pngMagic), []byte(body)...)
}

func seedBlob(t *testing.T, store BlobStore, key string, content []byte) *Object {
	t.Helper()
	obj, err := store.Put(context.Background(), key, "image/png", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return obj
}

// ---------------------------------------------------------------------------
// Key helpers
// ---------------------------------------------------------------------------

func TestPatientKey(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"healthy.png", "patients/1/healthy.png"},
		{"scans/no_healthy.png", "patients/1/no_healthy.png"},
		{`C:\Users\doc\scan.png`, "patients/1/scan.png"},
	}
	for _, tt := range tests {
		got, err := PatientKey(1, tt.filename)
		if err != nil {
			t.Fatalf("PatientKey(%q) error: %v", tt.filename, err)
		}
		if got != tt.want {
			t.Errorf("PatientKey(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestPatientKey_RejectsEmpty(t *testing.T) {
	for _, name := range []string{"", "  ", "..", "/"} {
		if _, err := PatientKey(1, name); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("PatientKey(%q): expected ErrInvalidKey, got %v", name, err)
		}
	}
}

func TestCleanKey_RejectsTraversal(t *testing.T) {
	for _, key := range []string{"../etc/passwd", "/abs/key", "a//b", "a/./b", "patients/../x"} {
		if _, err := CleanKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("CleanKey(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestResolveContentType(t *testing.T) {
	if got := ResolveContentType("image/jpeg", fakePNG("x")); got != "image/jpeg" {
		t.Errorf("declared type should win, got %s", got)
	}
	if got := ResolveContentType("application/octet-stream", fakePNG("x")); got != "image/png" {
		t.Errorf("expected sniffed image/png, got %s", got)
	}
	if got := ResolveContentType("", fakePNG("x")); got != "image/png" {
		t.Errorf("expected sniffed image/png, got %s", got)
	}
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

func TestInMemoryBlobStore_Put(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := fakePNG("hello world")

	obj, err := store.Put(context.Background(), "patients/1/healthy.png", "image/png", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if obj.Key != "patients/1/healthy.png" {
		t.Errorf("expected key patients/1/healthy.png, got %s", obj.Key)
	}
	if obj.ContentType != "image/png" {
		t.Errorf("expected ContentType=image/png, got %s", obj.ContentType)
	}
	if obj.Size != int64(len(content)) {
		t.Errorf("expected Size=%d, got %d", len(content), obj.Size)
	}
	if obj.StoredAt.IsZero() {
		t.Fatal("expected non-zero StoredAt")
	}
}

func TestInMemoryBlobStore_SHA256Hash(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := fakePNG("hash me")
	obj := seedBlob(t, store, "patients/1/a.png", content)

	want := fmt.Sprintf("%x", sha256.Sum256(content))
	if obj.Hash != want {
		t.Errorf("expected hash %s, got %s", want, obj.Hash)
	}
}

func TestInMemoryBlobStore_Get(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := fakePNG("binary-content-here")
	seedBlob(t, store, "patients/2/scan.png", content)

	rc, obj, err := store.Get(context.Background(), "patients/2/scan.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("error reading content: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("content mismatch")
	}
	if obj.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), obj.Size)
	}
}

func TestInMemoryBlobStore_GetNotFound(t *testing.T) {
	store := NewInMemoryBlobStore()

	_, _, err := store.Get(context.Background(), "patients/1/missing.png")
	if err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_OverwriteSameKey(t *testing.T) {
	store := NewInMemoryBlobStore()
	seedBlob(t, store, "patients/1/a.png", fakePNG("first"))
	second := seedBlob(t, store, "patients/1/a.png", fakePNG("second"))

	rc, obj, err := store.Get(context.Background(), "patients/1/a.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, fakePNG("second")) {
		t.Error("expected last write to win")
	}
	if obj.Hash != second.Hash {
		t.Error("expected hash of second write")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 blob, got %d", store.Len())
	}
}

func TestInMemoryBlobStore_Delete(t *testing.T) {
	store := NewInMemoryBlobStore()
	seedBlob(t, store, "patients/1/a.png", fakePNG("data"))

	if err := store.Delete(context.Background(), "patients/1/a.png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify it's gone.
	_, _, err := store.Get(context.Background(), "patients/1/a.png")
	if err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), "patients/1/a.png"); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestInMemoryBlobStore_Put_Empty(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Put(context.Background(), "patients/1/a.png", "image/png", strings.NewReader(""))
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestInMemoryBlobStore_Put_FileTooLarge(t *testing.T) {
	store := NewInMemoryBlobStore()
	big := io.MultiReader(strings.NewReader(pngMagic), io.LimitReader(zeroReader{}, MaxFileSize+1))
	_, err := store.Put(context.Background(), "patients/1/big.png", "image/png", big)
	if err != ErrFileTooLarge {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestInMemoryBlobStore_Put_InvalidContentType(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Put(context.Background(), "patients/1/notes.txt", "", strings.NewReader("plain text notes"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
}

func TestInMemoryBlobStore_ConcurrentDistinctKeys(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("patients/%d/scan.png", n)
			if _, err := store.Put(context.Background(), key, "image/png", bytes.NewReader(fakePNG(key))); err != nil {
				t.Errorf("put %s: %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("patients/%d/scan.png", i)
		rc, _, err := store.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if !bytes.Equal(data, fakePNG(key)) {
			t.Errorf("content of %s was overwritten by another writer", key)
		}
	}
}

func TestOpen_Memory(t *testing.T) {
	store, err := Open(context.Background(), Options{Backend: "memory"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*InMemoryBlobStore); !ok {
		t.Errorf("expected *InMemoryBlobStore, got %T", store)
	}
}

func TestOpen_Unknown(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
