// Package kvstore holds the durable key-value backends the console mirrors
// its session token into. Every backend satisfies Store; a missing key is
// reported as apperrors.ErrKeyNotFound and removing a missing key is not an
// error.
package kvstore

import (
	"context"
	"sync"

	"github.com/yigit/academydesk/internal/pkg/apperrors"
)

// Store is the durable key-value contract
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Closer is implemented by backends holding connections
type Closer interface {
	Close() error
}

// Memory is a process-local Store, used when no durable backend is configured
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty Memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get returns the value stored under key
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", apperrors.ErrKeyNotFound
	}
	return v, nil
}

// Set stores value under key
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Remove deletes key
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
