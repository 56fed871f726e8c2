package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// SessionManager tracks active sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	// max is the session limit; zero means unlimited.
	max int

	wg           sync.WaitGroup
	totalCreated atomic.Uint64

	logger *slog.Logger
}

func newSessionManager(max int, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		max:      max,
		logger:   logger.With("component", "session_manager"),
	}
}

// Get returns the session with the given ID, or nil.
func (m *SessionManager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Count returns the number of active sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// TotalCreated returns the number of sessions registered since start.
func (m *SessionManager) TotalCreated() uint64 {
	return m.totalCreated.Load()
}

// Full reports whether the session limit is reached.
func (m *SessionManager) Full() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.max > 0 && len(m.sessions) >= m.max
}

func (m *SessionManager) add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrServerClosed
	}
	if m.max > 0 && len(m.sessions) >= m.max {
		return ErrTooManySessions
	}
	m.sessions[s.ID] = s
	m.wg.Add(1)
	m.totalCreated.Add(1)
	return nil
}

// release unregisters s once its connection handler is done with it.
func (m *SessionManager) release(s *Session) {
	m.mu.Lock()
	if m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
	m.mu.Unlock()
	m.wg.Done()
}

// Shutdown closes every session and waits for their handlers to return or
// for ctx to end. No sessions are accepted afterwards.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("closing sessions", "count", len(sessions))
	for _, s := range sessions {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
