package query

import (
	"context"
	"sync"
	"time"

	"github.com/vango-dev/datatable/pkg/fetch"
)

// Entry is one cached result.
type Entry[T any] struct {
	Data        fetch.PaginatedResult[T] `json:"data"`
	UpdatedAt   time.Time                `json:"updatedAt"`
	Invalidated bool                     `json:"invalidated,omitempty"`
}

// Store persists cache entries by key string.
type Store[T any] interface {
	Get(ctx context.Context, key string) (Entry[T], bool, error)
	Set(ctx context.Context, key string, e Entry[T]) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{entries: make(map[string]Entry[T])}
}

func (m *MemoryStore[T]) Get(_ context.Context, key string) (Entry[T], bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryStore[T]) Set(_ context.Context, key string, e Entry[T]) error {
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of cached entries.
func (m *MemoryStore[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
