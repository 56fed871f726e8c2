package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/protocol"
)

// serve sends the welcome and initial state, then reads frames until the
// connection closes.
func (s *Session) serve(ctx context.Context) {
	defer s.Close()

	if err := s.send(&protocol.Welcome{Version: protocol.Version, SessionID: s.ID}); err != nil {
		s.logger.Debug("welcome not sent", "error", err)
		return
	}
	s.publishState()

	var wg sync.WaitGroup
	if interval := s.server.cfg.Server.PingInterval; interval > 0 {
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(2 * interval))
		})
		_ = s.conn.SetReadDeadline(time.Now().Add(2 * interval))

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pingLoop(interval)
		}()
	}

	s.readLoop(ctx)
	s.Close()
	wg.Wait()
}

// readLoop reads and handles frames until the connection fails.
func (s *Session) readLoop(ctx context.Context) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) && !s.closed.Load() {
				s.logger.Error("read error", "error", err)
				s.server.observeWSError("read")
			}
			return
		}
		s.handleFrame(ctx, raw)
	}
}

// pingLoop keeps the connection alive until the session closes.
func (s *Session) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.server.cfg.Server.WriteTimeout))
			if err != nil {
				s.logger.Debug("ping failed", "error", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// handleFrame decodes and applies one inbound frame inside a span. Failures
// are reported to the tab as non-fatal error frames.
func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	start := time.Now()
	frame, msg, err := protocol.Decode(raw)

	frameType := "invalid"
	if err == nil {
		frameType = string(frame.Type)
	}

	_, span := s.server.tracer.Start(ctx, "queryguard.frame "+frameType,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("queryguard.session_id", s.ID),
			attribute.String("queryguard.frame_type", frameType),
			attribute.Int64("queryguard.seq", int64(frame.Seq)),
		),
	)
	defer span.End()

	if err == nil {
		err = s.dispatch(msg)
	}

	if s.server.metrics != nil {
		s.server.metrics.ObserveFrame(frameType, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := qerrors.Code(err); code != "" {
			span.SetAttributes(attribute.String("queryguard.error_code", code))
		}
		if errors.Is(err, ErrSessionClosed) {
			return
		}
		s.replyError(frame.Seq, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (s *Session) dispatch(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.PopState:
		s.popState(m.Search)
		return nil

	case *protocol.Set:
		patch, err := m.ToPatch()
		if err != nil {
			return err
		}
		return s.guard.Set(patch, historyOpts(m.History)...)

	case *protocol.SetQueries:
		return s.guard.SetQueries(m.Queries, historyOpts(m.History)...)

	case *protocol.Reset:
		opts := historyOpts(m.History)
		if m.Mode != "" {
			opts = append(opts, guard.WithResetMode(m.Mode))
		}
		return s.guard.Reset(opts...)

	case *protocol.Hello:
		return qerrors.New("Q140").WithDetail("session already started")

	default:
		return qerrors.New("Q140").WithDetail(fmt.Sprintf("%s is a server frame", msg.FrameType()))
	}
}

func historyOpts(mode guard.HistoryMode) []guard.UpdateOption {
	if mode == "" {
		return nil
	}
	return []guard.UpdateOption{guard.WithHistory(mode)}
}
