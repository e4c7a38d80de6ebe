package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of [Store].
//
// History lives only as long as the process. Entries are copied in and out,
// so callers never share slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	limit   int
	entries map[Key][]Entry
}

// NewMemoryStore creates an empty [MemoryStore]. A positive limit keeps only
// the newest limit entries per key.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{
		limit:   limit,
		entries: make(map[Key][]Entry),
	}
}

// Append adds entry to key's history, assigning an ID if it has none.
func (m *MemoryStore) Append(_ context.Context, key Key, entry Entry) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.entries[key], entry)
	if m.limit > 0 && len(list) > m.limit {
		list = append([]Entry(nil), list[len(list)-m.limit:]...)
	}
	m.entries[key] = list
	return nil
}

// List returns a copy of key's history, oldest first.
func (m *MemoryStore) List(_ context.Context, key Key) ([]Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Entry{}, m.entries[key]...), nil
}

// Clear removes key's history.
func (m *MemoryStore) Clear(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
