package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func newTestLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files/",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return s
}

func TestLocalStorage_PutGetDelete(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	key := "uploads/u1/photo.png"

	if err := s.Put(ctx, key, strings.NewReader("png-bytes"), PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, info, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "png-bytes" {
		t.Errorf("data = %q", data)
	}
	if info.ContentType != "image/png" || info.Size != 9 {
		t.Errorf("info = %+v", info)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := s.Get(ctx, key); !IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestLocalStorage_PutRespectsOverwrite(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := s.Put(ctx, "a.jpg", strings.NewReader("1"), PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "a.jpg", strings.NewReader("2"), PutOptions{}); !errors.Is(err, ErrKeyExists) {
		t.Errorf("Put() without overwrite error = %v, want ErrKeyExists", err)
	}
	if err := s.Put(ctx, "a.jpg", strings.NewReader("2"), PutOptions{Overwrite: true}); err != nil {
		t.Errorf("Put() with overwrite error = %v", err)
	}
}

func TestLocalStorage_PutTooLargeLeavesNothingBehind(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	err := s.Put(ctx, "big/file.bin", strings.NewReader("0123456789"), PutOptions{MaxSize: 5})
	if !IsTooLarge(err) {
		t.Fatalf("Put() error = %v, want ErrTooLarge", err)
	}

	entries, _ := os.ReadDir(filepath.Join(s.BasePath(), "big"))
	if len(entries) != 0 {
		t.Errorf("expected no files after rejected put, found %d", len(entries))
	}
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape.txt", "uploads/../../etc/passwd", "/abs/path"} {
		if err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{}); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestLocalStorage_URL(t *testing.T) {
	s := newTestLocal(t)
	url, err := s.URL(context.Background(), "generations/u/g.png", 0)
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://localhost:8080/files/generations/u/g.png" {
		t.Errorf("URL = %q", url)
	}
}

func TestKeys(t *testing.T) {
	userID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	id := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	if got := UploadKey(userID, id, "image/jpeg"); got != "uploads/"+userID.String()+"/"+id.String()+".jpg" {
		t.Errorf("UploadKey = %q", got)
	}
	if got := GenerationKey(userID, id, "image/png; charset=binary"); got != "generations/"+userID.String()+"/"+id.String()+".png" {
		t.Errorf("GenerationKey = %q", got)
	}
}

func TestIsAllowedImageType(t *testing.T) {
	tests := map[string]bool{
		"image/jpeg":     true,
		"IMAGE/PNG":      true,
		"image/webp":     true,
		"image/gif":      false,
		"image/heic":     false,
		"application/pdf": false,
	}
	for ct, want := range tests {
		if got := IsAllowedImageType(ct); got != want {
			t.Errorf("IsAllowedImageType(%q) = %v, want %v", ct, got, want)
		}
	}
}
