// Package tokenstore provides durable key/value storage for client-side
// credentials: the bearer token of the token session model and the persisted
// cookies of the cookie session model.
//
// # What this package must NOT do
//
//   - Log or format stored values.
//   - Interpret the values it stores.
package tokenstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when key has no value.
var ErrNotFound = errors.New("tokenstore: not found")

// Store persists string values by key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Memory is a process-local Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// Lookup is Get with absence folded into ok=false.
func Lookup(ctx context.Context, s Store, key string) (string, bool, error) {
	if s == nil {
		return "", false, nil
	}
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}
