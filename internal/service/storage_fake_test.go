package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/DukeRupert/adcraft/internal/storage"
)

// memStorage is an in-memory storage.Storage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

var _ storage.Storage = (*memStorage)(nil)

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStorage) Put(ctx context.Context, key string, data io.Reader, opts storage.PutOptions) error {
	if s.putErr != nil {
		return s.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok && !opts.Overwrite {
		return storage.ErrKeyExists
	}
	s.objects[key] = b
	s.types[key] = opts.ContentType
	return nil
}

func (s *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}
	info := storage.ObjectInfo{Key: key, Size: int64(len(b)), ContentType: s.types[key], LastModified: time.Now()}
	return io.NopCloser(bytes.NewReader(b)), info, nil
}

func (s *memStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.types, key)
	return nil
}

func (s *memStorage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://cdn.test/" + key, nil
}

func (s *memStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	return out
}
