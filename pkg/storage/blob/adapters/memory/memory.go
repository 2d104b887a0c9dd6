// Package memory provides an in-memory blob.Store for testing.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/open-collar/reliablequeue/pkg/errors"
	"github.com/open-collar/reliablequeue/pkg/storage/blob"
)

// Store is an in-memory, goroutine-safe blob.Store.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates an empty in-memory store. cfg is accepted for interface
// parity with the other adapters and is otherwise ignored.
func New(_ blob.Config) *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) Upload(ctx context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return errors.Internal("failed to read blob data", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	return nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.objects[key]
	if !ok {
		return nil, errors.NotFound("blob not found", nil)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return errors.NotFound("blob not found", nil)
	}
	delete(s.objects, key)
	return nil
}

func (s *Store) URL(key string) string {
	return "memory://" + key
}
