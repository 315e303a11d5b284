package kv

import (
	"context"
	"sync"
)

// MemorySpace keeps every client's values in process memory.
type MemorySpace struct {
	mu      sync.Mutex
	clients map[string]*Memory
}

// NewMemorySpace returns an empty [MemorySpace].
func NewMemorySpace() *MemorySpace {
	return &MemorySpace{clients: make(map[string]*Memory)}
}

// For returns the medium of clientID, creating it on first use.
func (s *MemorySpace) For(clientID string) Medium {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.clients[clientID]
	if !ok {
		m = NewMemory()
		s.clients[clientID] = m
	}
	return m
}

// Memory is a mutex-guarded map implementing [Medium].
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemory returns an empty [Memory].
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the stored value and whether it exists.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	return v, ok, nil
}

// GetMany reads keys under one lock acquisition.
func (m *Memory) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMany stores all values under one lock acquisition.
func (m *Memory) SetMany(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

// Delete removes keys.
func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// DeleteIf compares and removes keys under one lock acquisition.
func (m *Memory) DeleteIf(ctx context.Context, seen map[string]string, keys ...string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		want, had := seen[k]
		got, has := m.values[k]
		if had != has || got != want {
			return false, nil
		}
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return true, nil
}

// Take reads and removes key under one lock acquisition.
func (m *Memory) Take(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if ok {
		delete(m.values, key)
	}
	return v, ok, nil
}
