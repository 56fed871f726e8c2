package permalink

import (
	"context"
	"sync"
)

// MemoryStore keeps links in process.
type MemoryStore struct {
	mu    sync.RWMutex
	links map[string]Link
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]Link)}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, search string) (Link, error) {
	link := newLink(search)
	m.mu.Lock()
	m.links[link.ID] = link
	m.mu.Unlock()
	return link, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[id]
	if !ok {
		return Link{}, ErrNotFound
	}
	return link, nil
}

// Len returns the number of stored links.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.links)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
