package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
)

// Limits.
const (
	// MaxFrameSize is the largest accepted frame in bytes.
	MaxFrameSize = 64 * 1024

	// MaxSearchLength is the longest accepted search string.
	MaxSearchLength = 8 * 1024

	// MaxKeys is the largest number of keys in a set or set_queries frame.
	MaxKeys = 256
)

// FrameType identifies a message.
type FrameType string

const (
	TypeHello      FrameType = "hello"
	TypePopState   FrameType = "popstate"
	TypeSet        FrameType = "set"
	TypeSetQueries FrameType = "set_queries"
	TypeReset      FrameType = "reset"

	TypeWelcome FrameType = "welcome"
	TypeURL     FrameType = "url"
	TypeState   FrameType = "state"
	TypeError   FrameType = "error"
)

// ClientToServer reports whether t is sent by the browser.
func (t FrameType) ClientToServer() bool {
	switch t {
	case TypeHello, TypePopState, TypeSet, TypeSetQueries, TypeReset:
		return true
	}
	return false
}

// Frame errors.
var (
	ErrInvalidFrame      = qerrors.New("Q140")
	ErrFrameTooLarge     = qerrors.New("Q141")
	ErrHandshakeRequired = qerrors.New("Q142")
)

// Frame is the envelope of every message.
type Frame struct {
	Type FrameType       `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a decoded frame payload.
type Message interface {
	FrameType() FrameType
}

// Encode wraps msg in an envelope.
func Encode(seq uint64, msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.FrameType(), err)
	}
	out, err := json.Marshal(Frame{Type: msg.FrameType(), Seq: seq, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.FrameType(), err)
	}
	if len(out) > MaxFrameSize {
		return nil, qerrors.New("Q141").WithDetail(fmt.Sprintf("%s frame is %d bytes", msg.FrameType(), len(out)))
	}
	return out, nil
}

// Decode parses a frame and its payload.
func Decode(raw []byte) (Frame, Message, error) {
	if len(raw) > MaxFrameSize {
		return Frame{}, nil, qerrors.New("Q141").WithDetail(fmt.Sprintf("%d bytes", len(raw)))
	}

	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, nil, qerrors.New("Q140").Wrap(err)
	}

	var msg Message
	switch f.Type {
	case TypeHello:
		msg = &Hello{}
	case TypePopState:
		msg = &PopState{}
	case TypeSet:
		msg = &Set{}
	case TypeSetQueries:
		msg = &SetQueries{}
	case TypeReset:
		msg = &Reset{}
	case TypeWelcome:
		msg = &Welcome{}
	case TypeURL:
		msg = &URL{}
	case TypeState:
		msg = &State{}
	case TypeError:
		msg = &ErrorMessage{}
	default:
		return f, nil, qerrors.New("Q140").WithDetail(fmt.Sprintf("unknown frame type %q", f.Type))
	}

	if len(f.Data) > 0 && !bytes.Equal(f.Data, []byte("null")) {
		if err := json.Unmarshal(f.Data, msg); err != nil {
			return f, nil, qerrors.New("Q140").
				WithDetail(fmt.Sprintf("%s payload", f.Type)).
				Wrap(err)
		}
	}
	if v, ok := msg.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return f, nil, err
		}
	}
	return f, msg, nil
}
