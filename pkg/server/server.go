package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/queryguard/internal/config"
	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/metrics"
	"github.com/vango-dev/queryguard/pkg/permalink"
	"github.com/vango-dev/queryguard/pkg/protocol"
)

// TracerName is the instrumentation name used for session spans.
const TracerName = "github.com/vango-dev/queryguard/pkg/server"

// Options configures a Server.
type Options struct {
	// Config is the server configuration. Default: config.New().
	Config *config.Config

	// Resolver and Default configure every session guard. Resolver is
	// shared across sessions and must be safe for concurrent use.
	Resolver guard.Resolver[any]
	Default  map[string]any

	// Links stores permalinks. The /links routes are not mounted when nil.
	Links permalink.Store

	// Metrics records session, frame and guard measurements. Optional.
	Metrics *metrics.Metrics

	// Gatherer serves /metrics. Optional.
	Gatherer prometheus.Gatherer

	// TracerProvider creates frame spans. Default: the global provider.
	TracerProvider trace.TracerProvider

	// Logger is the base logger. Default: slog.Default().
	Logger *slog.Logger
}

// Server is the HTTP and WebSocket server.
type Server struct {
	cfg      *config.Config
	resolver guard.Resolver[any]
	defaults map[string]any
	links    permalink.Store
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	tracer   trace.Tracer

	sessions *SessionManager
	upgrader websocket.Upgrader
	router   chi.Router

	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Resolver == nil {
		return nil, qerrors.New("Q102")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	logger = logger.With("component", "server")
	s := &Server{
		cfg:      cfg,
		resolver: opts.Resolver,
		defaults: opts.Default,
		links:    opts.Links,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		tracer:   tp.Tracer(TracerName),
		sessions: newSessionManager(cfg.Server.MaxSessions, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.Server.AllowedOrigins),
		},
		logger: logger,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.HandleWebSocket)
	if s.gatherer != nil && s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.links != nil {
		r.Post("/links", s.handleCreateLink)
		r.Get("/l/{id}", s.handleFollowLink)
	}
	return r
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Run serves on the configured address until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.cfg.Server.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.WithoutCancel(ctx))
	}
}

// Shutdown closes all sessions and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.sessions.Shutdown(ctx); err != nil {
		s.logger.Warn("sessions did not drain", "error", err)
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// HandleWebSocket upgrades the request and runs a session until the
// connection closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Full() {
		s.observeWSError("capacity")
		http.Error(w, ErrTooManySessions.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.observeWSError("upgrade")
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(protocol.MaxFrameSize)

	hello, err := s.readHello(conn)
	if err != nil {
		s.observeWSError("handshake")
		s.logger.Info("handshake failed", "remote", r.RemoteAddr, "error", err)
		rejectConn(conn, err, s.cfg.Server.WriteTimeout)
		return
	}

	sess, err := newSession(s, conn, hello.Search)
	if err != nil {
		s.observeWSError("session")
		s.logger.Error("session setup failed", "error", err)
		rejectConn(conn, err, s.cfg.Server.WriteTimeout)
		return
	}

	if err := s.sessions.add(sess); err != nil {
		sess.fail(err)
		return
	}
	defer s.sessions.release(sess)

	if s.metrics != nil {
		s.metrics.SessionOpened()
		defer s.metrics.SessionClosed()
	}
	sess.logger.Info("session started", "remote", r.RemoteAddr, "search", hello.Search)

	sess.serve(r.Context())
	sess.logger.Info("session ended")
}

func (s *Server) readHello(conn *websocket.Conn) (*protocol.Hello, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.Server.ReadTimeout)); err != nil {
		return nil, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_, msg, err := protocol.Decode(raw)
	if err != nil {
		return nil, err
	}
	hello, ok := msg.(*protocol.Hello)
	if !ok {
		return nil, qerrors.New("Q142").WithDetail("first frame was " + string(msg.FrameType()))
	}
	if hello.Version != 0 && hello.Version != protocol.Version {
		return nil, qerrors.New("Q140").WithDetail("unsupported protocol version")
	}
	return hello, conn.SetReadDeadline(time.Time{})
}

// rejectConn sends a fatal error frame and closes conn.
func rejectConn(conn *websocket.Conn, cause error, timeout time.Duration) {
	defer conn.Close()
	data, err := protocol.Encode(0, protocol.NewErrorMessage(cause, true))
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, qerrors.Code(cause)),
		time.Now().Add(timeout))
}

func (s *Server) observeWSError(kind string) {
	if s.metrics != nil {
		s.metrics.WebSocketError(kind)
	}
}

// checkOrigin returns nil (gorilla's same-origin check) when no origins are
// configured. "*" accepts any origin.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
