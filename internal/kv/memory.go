package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/aegisdns/syncd/internal/common"
)

// MemoryStore is a map-backed Store used in tests and as a stand-in for a
// platform synced store during development.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("kv[%s]: %w", key, common.ErrNotFound)
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
