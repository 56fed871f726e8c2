package adapter

import (
	"sync"

	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/query"
)

// Write records one SetSearch call on a Memory adapter.
type Write struct {
	Search  string
	History guard.HistoryMode
}

// Memory keeps the search string in process.
type Memory struct {
	mu       sync.Mutex
	search   string
	writes   []Write
	failNext error

	b broadcaster
}

var _ guard.Adapter = (*Memory)(nil)

// NewMemory returns a Memory adapter holding initial.
func NewMemory(initial string) *Memory {
	return &Memory{search: query.Normalize(initial)}
}

// Search implements guard.Adapter.
func (m *Memory) Search() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.search
}

// SetSearch implements guard.Adapter.
func (m *Memory) SetSearch(next string, opts guard.UpdateOptions) error {
	m.mu.Lock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		m.mu.Unlock()
		return err
	}
	mode := opts.History
	if mode == "" {
		mode = guard.HistoryReplace
	}
	m.search = query.Normalize(next)
	m.writes = append(m.writes, Write{Search: m.search, History: mode})
	m.mu.Unlock()

	m.b.notify()
	return nil
}

// Subscribe implements guard.Adapter.
func (m *Memory) Subscribe(listener func()) func() {
	return m.b.subscribe(listener)
}

// Mutate changes the search string without notifying subscribers,
// like a host mutation the adapter cannot observe.
func (m *Memory) Mutate(search string) {
	m.mu.Lock()
	m.search = query.Normalize(search)
	m.mu.Unlock()
}

// Navigate changes the search string and notifies subscribers,
// like an external navigation the adapter observes.
func (m *Memory) Navigate(search string) {
	m.Mutate(search)
	m.b.notify()
}

// Writes returns the SetSearch calls recorded so far.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// Subscribers returns the number of subscribers.
func (m *Memory) Subscribers() int {
	return m.b.count()
}

// FailNext makes the next SetSearch return err without persisting.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	m.failNext = err
	m.mu.Unlock()
}
