package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	domainerrors "verifyflow.backend/internal/domain/errors"
)

// Object is a file held by MemoryStorage
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStorage keeps files in process for development and tests
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]Object)}
}

func (m *MemoryStorage) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = Object{Data: buf.Bytes(), ContentType: contentType}
	m.mu.Unlock()
	return "memory://" + key, nil
}

func (m *MemoryStorage) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", domainerrors.ErrNotFound
	}
	return fmt.Sprintf("memory://%s?expires=%d", url.PathEscape(key), int64(ttl.Seconds())), nil
}

// Get returns a stored object
func (m *MemoryStorage) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

func (m *MemoryStorage) Ping(context.Context) error { return nil }
