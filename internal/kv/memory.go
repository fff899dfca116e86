package kv

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Keys are listed in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	order []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storageErr("get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("set", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		s.order = append(s.order, key)
	}
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("remove", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("keys", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys, nil
}

func (s *MemoryStore) RemoveMany(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("remove many", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.removeLocked(key)
	}
	return nil
}

func (s *MemoryStore) removeLocked(key string) {
	if _, ok := s.data[key]; !ok {
		return
	}
	delete(s.data, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
