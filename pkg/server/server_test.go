package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/vango-dev/queryguard/internal/config"
	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/metrics"
	"github.com/vango-dev/queryguard/pkg/permalink"
	"github.com/vango-dev/queryguard/pkg/protocol"
	"github.com/vango-dev/queryguard/pkg/resolver"
	"github.com/vango-dev/queryguard/pkg/server"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	srv      *server.Server
	ts       *httptest.Server
	registry *prometheus.Registry
	spans    *tracetest.SpanRecorder
	links    *permalink.MemoryStore
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	cfg := config.New()
	if mutate != nil {
		mutate(cfg)
	}

	schema, err := resolver.NewSchema([]*resolver.Field{
		resolver.String("q"),
		resolver.Int("page").Default(1).Min(1),
	})
	require.NoError(t, err)

	h := &harness{
		registry: prometheus.NewRegistry(),
		spans:    tracetest.NewSpanRecorder(),
		links:    permalink.NewMemoryStore(),
	}
	srv, err := server.New(server.Options{
		Config:         cfg,
		Resolver:       schema,
		Default:        map[string]any{"q": "", "page": 1},
		Links:          h.links,
		Metrics:        metrics.New(metrics.WithRegistry(h.registry)),
		Gatherer:       h.registry,
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans)),
	})
	require.NoError(t, err)
	h.srv = srv

	h.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(h.ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	})
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// open dials and completes the handshake, returning the welcome and the
// initial state.
func (h *harness) open(t *testing.T, search string) (*websocket.Conn, *protocol.Welcome, *protocol.State) {
	t.Helper()
	conn := h.dial(t)
	send(t, conn, &protocol.Hello{Version: protocol.Version, Search: search})
	welcome := expect[*protocol.Welcome](t, conn)
	state := expect[*protocol.State](t, conn)
	return conn, welcome, state
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	sendSeq(t, conn, 0, msg)
}

func sendSeq(t *testing.T, conn *websocket.Conn, seq uint64, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(seq, msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func read(t *testing.T, conn *websocket.Conn) (protocol.Frame, protocol.Message) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, msg, err := protocol.Decode(raw)
	require.NoError(t, err)
	return frame, msg
}

func expect[T protocol.Message](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	_, msg := read(t, conn)
	v, ok := msg.(T)
	require.True(t, ok, "unexpected %T: %+v", msg, msg)
	return v
}

func TestNewRequiresResolver(t *testing.T) {
	_, err := server.New(server.Options{})
	require.Error(t, err)
	assert.Equal(t, "Q102", qerrors.Code(err))
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)

	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, rec.Body.String())
}

func TestHandshakeRequired(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)

	send(t, conn, &protocol.PopState{Search: "?q=go"})
	msg := expect[*protocol.ErrorMessage](t, conn)
	assert.Equal(t, "Q142", msg.Code)
	assert.True(t, msg.Fatal)

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, h.srv.Sessions().Count())
}

func TestSessionRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	conn, welcome, state := h.open(t, "?q=go&x=1")

	assert.Equal(t, protocol.Version, welcome.Version)
	require.NotEmpty(t, welcome.SessionID)
	assert.NotNil(t, h.srv.Sessions().Get(welcome.SessionID))

	assert.Equal(t, uint64(1), state.Version)
	assert.Equal(t, "?q=go&x=1", state.Search)
	assert.Equal(t, map[string]any{"q": "go", "page": float64(1)}, state.Queries)
	assert.Equal(t, []string{"x"}, state.Meta.CleanedKeys)

	t.Run("set", func(t *testing.T) {
		send(t, conn, &protocol.Set{Patch: map[string]json.RawMessage{"page": json.RawMessage("2")}})

		url := expect[*protocol.URL](t, conn)
		assert.Equal(t, "?page=2&q=go&x=1", url.Search)
		assert.Equal(t, guard.HistoryReplace, url.History)

		state := expect[*protocol.State](t, conn)
		assert.Equal(t, uint64(2), state.Version)
		assert.Equal(t, float64(2), state.Queries["page"])
	})

	t.Run("popstate", func(t *testing.T) {
		send(t, conn, &protocol.PopState{Search: "?q=rust"})

		state := expect[*protocol.State](t, conn)
		assert.Equal(t, uint64(3), state.Version)
		assert.Equal(t, "?q=rust", state.Search)
		assert.Equal(t, map[string]any{"q": "rust", "page": float64(1)}, state.Queries)
	})

	t.Run("set_queries", func(t *testing.T) {
		send(t, conn, &protocol.SetQueries{
			Queries: map[string]any{"q": "zig", "page": 3},
			History: guard.HistoryPush,
		})

		url := expect[*protocol.URL](t, conn)
		assert.Equal(t, "?page=3&q=zig", url.Search)
		assert.Equal(t, guard.HistoryPush, url.History)
		expect[*protocol.State](t, conn)
	})

	t.Run("reset", func(t *testing.T) {
		send(t, conn, &protocol.Reset{})

		url := expect[*protocol.URL](t, conn)
		assert.Equal(t, "?", url.Search)

		state := expect[*protocol.State](t, conn)
		assert.Equal(t, map[string]any{"page": float64(1)}, state.Queries)
	})
}

func TestSessionDropPolicy(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Guard.UnknownPolicy = "drop"
	})
	conn, _, _ := h.open(t, "?q=go&utm=mail")

	send(t, conn, &protocol.Set{Patch: map[string]json.RawMessage{"page": json.RawMessage("5")}})
	url := expect[*protocol.URL](t, conn)
	assert.Equal(t, "?page=5&q=go", url.Search)
}

func TestInvalidFrameIsNotFatal(t *testing.T) {
	h := newHarness(t, nil)
	conn, _, _ := h.open(t, "?q=go")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := expect[*protocol.ErrorMessage](t, conn)
	assert.Equal(t, "Q140", msg.Code)
	assert.False(t, msg.Fatal)

	send(t, conn, &protocol.State{Search: "?q=x"})
	msg = expect[*protocol.ErrorMessage](t, conn)
	assert.Equal(t, "Q140", msg.Code)

	send(t, conn, &protocol.Hello{Search: "?q=x"})
	msg = expect[*protocol.ErrorMessage](t, conn)
	assert.Equal(t, "Q140", msg.Code)

	send(t, conn, &protocol.Set{Patch: map[string]json.RawMessage{"q": json.RawMessage("null")}})
	url := expect[*protocol.URL](t, conn)
	assert.Equal(t, "?page=1", url.Search)
}

func TestErrorRepliesEchoFrameSeq(t *testing.T) {
	h := newHarness(t, nil)
	conn, _, _ := h.open(t, "?q=go")

	sendSeq(t, conn, 42, &protocol.Reset{Mode: "bogus"})
	frame, msg := read(t, conn)
	reply, ok := msg.(*protocol.ErrorMessage)
	require.True(t, ok, "unexpected %T", msg)
	assert.EqualValues(t, 42, reply.ReplyTo)
	assert.False(t, reply.Fatal)
	assert.NotEqual(t, uint64(42), frame.Seq)

	sendSeq(t, conn, 43, &protocol.State{Search: "?q=x"})
	reply = expect[*protocol.ErrorMessage](t, conn)
	assert.EqualValues(t, 43, reply.ReplyTo)
	assert.Equal(t, "Q140", reply.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	reply = expect[*protocol.ErrorMessage](t, conn)
	assert.Zero(t, reply.ReplyTo)
}

func TestFrameSpansAndMetrics(t *testing.T) {
	h := newHarness(t, nil)
	conn, _, _ := h.open(t, "?q=go")

	send(t, conn, &protocol.Set{Patch: map[string]json.RawMessage{"page": json.RawMessage("2")}})
	expect[*protocol.URL](t, conn)
	expect[*protocol.State](t, conn)

	assert.Eventually(t, func() bool {
		for _, span := range h.spans.Ended() {
			if span.Name() == "queryguard.frame set" {
				return span.Status().Code == codes.Ok
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	var found bool
	for _, span := range h.spans.Ended() {
		if span.Name() != "queryguard.frame set" {
			continue
		}
		found = true
		assert.Contains(t, span.Attributes(), attribute.String("queryguard.frame_type", "set"))
	}
	assert.True(t, found)

	count, err := testutil.GatherAndCount(h.registry, "queryguard_frames_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)

	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "queryguard_active_sessions 1")
}

func TestMaxSessions(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Server.MaxSessions = 1
	})
	h.open(t, "?")

	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestShutdownClosesSessions(t *testing.T) {
	h := newHarness(t, nil)
	conn, _, _ := h.open(t, "?q=go")
	require.Equal(t, 1, h.srv.Sessions().Count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, h.srv.Sessions().Count())
	assert.Equal(t, uint64(1), h.srv.Sessions().TotalCreated())
}

func TestLinks(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Server.BaseURL = "https://example.com/search"
	})
	handler := h.srv.Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/links", bytes.NewBufferString(`{"search":"q=go&page=2"}`))
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Search string `json:"search"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "http://example.com/l/"+created.ID, created.URL)
	assert.Equal(t, "?q=go&page=2", created.Search)
	assert.Equal(t, 1, h.links.Len())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/l/"+created.ID, nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/search?q=go&page=2", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/l/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/links", bytes.NewBufferString(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, size := range []int{protocol.MaxSearchLength + 8, 9000, 64 * 1024} {
		body := `{"search":"q=` + strings.Repeat("a", size) + `"}`
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/links", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, "search of %d bytes", size)
	}
	assert.Equal(t, 1, h.links.Len())
}
