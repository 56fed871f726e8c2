package history

import (
	"sync"
)

// Memory is an in-process Host with a browser-like entry stack.
// Only traversal (Back, Forward, Go) fires popstate listeners.
type Memory struct {
	mu      sync.Mutex
	entries []string
	index   int

	listenersMu sync.Mutex
	listeners   map[uint64]func()
	nextID      uint64
}

// NewMemory returns a Memory host whose single entry is initial.
func NewMemory(initial string) *Memory {
	return &Memory{
		entries:   []string{initial},
		listeners: make(map[uint64]func()),
	}
}

// Location implements Host.
func (m *Memory) Location() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[m.index]
}

// PushState implements Host. Forward entries are discarded.
func (m *Memory) PushState(search string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries[:m.index+1], search)
	m.index++
	return nil
}

// ReplaceState implements Host.
func (m *Memory) ReplaceState(search string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.index] = search
	return nil
}

// OnPopState implements Host.
func (m *Memory) OnPopState(fn func()) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// Listeners returns the number of registered popstate listeners.
func (m *Memory) Listeners() int {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	return len(m.listeners)
}

// Len returns the number of history entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Back moves one entry back. It reports false at the first entry.
func (m *Memory) Back() bool {
	return m.Go(-1)
}

// Forward moves one entry forward. It reports false at the last entry.
func (m *Memory) Forward() bool {
	return m.Go(1)
}

// Go moves delta entries and fires popstate listeners.
// Out-of-range moves do nothing and report false.
func (m *Memory) Go(delta int) bool {
	m.mu.Lock()
	target := m.index + delta
	if delta == 0 || target < 0 || target >= len(m.entries) {
		m.mu.Unlock()
		return false
	}
	m.index = target
	m.mu.Unlock()

	m.PopState()
	return true
}

// PopState fires popstate listeners without moving, the way a host
// announces navigation it performed on its own.
func (m *Memory) PopState() {
	m.listenersMu.Lock()
	listeners := make([]func(), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenersMu.Unlock()

	for _, l := range listeners {
		l()
	}
}
