// Package kvstore provides the string key/value backends behind the TTL cache.
package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Storage is a flat string key/value namespace.
type Storage interface {
	// Read returns the value for key and whether it exists.
	Read(ctx context.Context, key string) (string, bool, error)
	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Lister is implemented by backends that can enumerate keys.
type Lister interface {
	// Keys returns every stored key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Memory is an in-process Storage. Contents are lost on restart.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Read implements Storage.
func (m *Memory) Read(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Write implements Storage.
func (m *Memory) Write(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Remove implements Storage.
func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys implements Lister.
func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
