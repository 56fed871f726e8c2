package server

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/queryguard/pkg/adapter"
	"github.com/vango-dev/queryguard/pkg/binding"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/history"
	"github.com/vango-dev/queryguard/pkg/protocol"
)

// Session is one connected browser tab. It implements history.Host.
type Session struct {
	// ID is the session identifier sent in the welcome frame.
	ID string

	// CreatedAt is when the handshake completed.
	CreatedAt time.Time

	server *Server
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu serializes writes to conn and guards seq.
	writeMu sync.Mutex
	seq     uint64

	mu        sync.Mutex
	location  string
	listeners []popListener
	nextID    uint64

	guard       *guard.Guard[any]
	store       *binding.Store[any]
	unsubscribe func()

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

type popListener struct {
	id uint64
	fn func()
}

var _ history.Host = (*Session)(nil)

func newSession(srv *Server, conn *websocket.Conn, search string) (*Session, error) {
	id := uuid.NewString()
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		server:    srv,
		conn:      conn,
		logger:    srv.logger.With("session", id),
		location:  search,
		done:      make(chan struct{}),
	}

	a, err := adapter.NewHistory(history.WithHost(context.Background(), s))
	if err != nil {
		return nil, err
	}

	opts := guard.Options[any]{
		Adapter:       a,
		Resolver:      srv.resolver,
		Default:       srv.defaults,
		UnknownPolicy: guard.UnknownPolicy(srv.cfg.Guard.UnknownPolicy),
		History:       guard.HistoryMode(srv.cfg.Guard.History),
		Logger:        s.logger,
		OnError:       func(err error) { s.sendError(err, false) },
	}
	if srv.metrics != nil {
		opts.Observer = srv.metrics
	}
	g, err := guard.New(opts)
	if err != nil {
		return nil, err
	}

	s.guard = g
	s.store = binding.New(g)
	s.unsubscribe = s.store.Subscribe(s.publishState)
	return s, nil
}

// Location implements history.Host.
func (s *Session) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// PushState implements history.Host by telling the tab to push an entry.
func (s *Session) PushState(search string) error {
	return s.navigate(search, guard.HistoryPush)
}

// ReplaceState implements history.Host by telling the tab to replace its
// current entry.
func (s *Session) ReplaceState(search string) error {
	return s.navigate(search, guard.HistoryReplace)
}

func (s *Session) navigate(search string, mode guard.HistoryMode) error {
	s.mu.Lock()
	s.location = search
	s.mu.Unlock()
	return s.send(&protocol.URL{Search: search, History: mode})
}

// OnPopState implements history.Host.
func (s *Session) OnPopState(fn func()) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, popListener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l popListener) bool {
			return l.id == id
		})
	}
}

// Guard returns the session's guard.
func (s *Session) Guard() *guard.Guard[any] {
	return s.guard
}

// popState records back/forward navigation in the tab and fires popstate
// listeners.
func (s *Session) popState(search string) {
	s.mu.Lock()
	s.location = search
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn()
	}
}

// publishState sends a state frame when the guard's search string changed
// since the last one sent.
func (s *Session) publishState() {
	v, changed, err := s.store.Poll()
	if err != nil {
		s.sendError(err, false)
		return
	}
	if !changed {
		return
	}
	err = s.send(&protocol.State{
		Version: v.Version,
		Search:  v.Search,
		Raw:     v.Raw,
		Queries: v.Queries,
		Meta:    v.Meta,
	})
	if err != nil {
		s.logger.Debug("state not sent", "error", err)
	}
}

// send encodes msg and writes it to the connection.
func (s *Session) send(msg protocol.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}

	data, err := protocol.Encode(s.seq+1, msg)
	if err != nil {
		return err
	}
	s.seq++

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.server.cfg.Server.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) sendError(err error, fatal bool) {
	s.writeError(protocol.NewErrorMessage(err, fatal), err)
}

// replyError reports that the client frame numbered seq failed.
func (s *Session) replyError(seq uint64, err error) {
	msg := protocol.NewErrorMessage(err, false)
	msg.ReplyTo = seq
	s.writeError(msg, err)
}

func (s *Session) writeError(msg *protocol.ErrorMessage, err error) {
	s.logger.Warn("session error", "error", err, "fatal", msg.Fatal, "reply_to", msg.ReplyTo)
	if sendErr := s.send(msg); sendErr != nil {
		s.logger.Debug("error frame not sent", "error", sendErr)
	}
}

// fail sends a fatal error and closes the session.
func (s *Session) fail(err error) {
	s.sendError(err, true)
	s.Close()
}

// Close closes the connection and detaches the guard. It is safe to call
// more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.guard.Close()

		s.writeMu.Lock()
		s.closed.Store(true)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		close(s.done)
		s.conn.Close()
	})
}

// IsClosed reports whether the session was closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}
