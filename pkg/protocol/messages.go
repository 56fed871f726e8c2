package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/query"
)

// Version is the protocol version sent in hello and welcome.
const Version = 1

// Hello opens a session.
type Hello struct {
	Version int    `json:"version"`
	Search  string `json:"search"`
}

// PopState reports back/forward navigation in the tab.
type PopState struct {
	Search string `json:"search"`
}

// Set is a partial update. A JSON null value deletes the key.
type Set struct {
	Patch   map[string]json.RawMessage `json:"patch"`
	History guard.HistoryMode          `json:"history,omitempty"`
}

// SetQueries replaces the typed state.
type SetQueries struct {
	Queries map[string]any    `json:"queries"`
	History guard.HistoryMode `json:"history,omitempty"`
}

// Reset clears owned keys or writes defaults.
type Reset struct {
	Mode    guard.ResetMode   `json:"mode,omitempty"`
	History guard.HistoryMode `json:"history,omitempty"`
}

// Welcome completes the handshake.
type Welcome struct {
	Version   int    `json:"version"`
	SessionID string `json:"sessionId"`
}

// URL asks the tab to update its location.
type URL struct {
	Search  string            `json:"search"`
	History guard.HistoryMode `json:"history"`
}

// State publishes the resolved state.
type State struct {
	Version uint64         `json:"version"`
	Search  string         `json:"search"`
	Raw     query.Raw      `json:"raw"`
	Queries map[string]any `json:"queries"`
	Meta    guard.Meta     `json:"meta"`
}

func (*Hello) FrameType() FrameType        { return TypeHello }
func (*PopState) FrameType() FrameType     { return TypePopState }
func (*Set) FrameType() FrameType          { return TypeSet }
func (*SetQueries) FrameType() FrameType   { return TypeSetQueries }
func (*Reset) FrameType() FrameType        { return TypeReset }
func (*Welcome) FrameType() FrameType      { return TypeWelcome }
func (*URL) FrameType() FrameType          { return TypeURL }
func (*State) FrameType() FrameType        { return TypeState }
func (*ErrorMessage) FrameType() FrameType { return TypeError }

// ToPatch converts the frame into a guard patch. Values are decoded with
// encoding/json; keys are applied in sorted order.
func (s *Set) ToPatch() (*guard.Patch[any], error) {
	p := guard.NewPatch[any]()
	for _, k := range slices.Sorted(maps.Keys(s.Patch)) {
		raw := s.Patch[k]
		if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			p.Delete(k)
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, qerrors.New("Q140").WithDetail(fmt.Sprintf("patch key %q", k)).Wrap(err)
		}
		p.Set(k, v)
	}
	return p, nil
}

func (h *Hello) validate() error {
	return checkSearch(h.Search)
}

func (p *PopState) validate() error {
	return checkSearch(p.Search)
}

func (s *Set) validate() error {
	if len(s.Patch) > MaxKeys {
		return qerrors.New("Q140").WithDetail(fmt.Sprintf("patch has %d keys, limit is %d", len(s.Patch), MaxKeys))
	}
	return checkHistory(s.History)
}

func (s *SetQueries) validate() error {
	if len(s.Queries) > MaxKeys {
		return qerrors.New("Q140").WithDetail(fmt.Sprintf("queries has %d keys, limit is %d", len(s.Queries), MaxKeys))
	}
	return checkHistory(s.History)
}

func (r *Reset) validate() error {
	switch r.Mode {
	case "", guard.ResetClear, guard.ResetWriteDefaults:
	default:
		return qerrors.New("Q140").WithDetail(fmt.Sprintf("reset mode %q", r.Mode))
	}
	return checkHistory(r.History)
}

func checkSearch(search string) error {
	if len(search) > MaxSearchLength {
		return qerrors.New("Q140").WithDetail(fmt.Sprintf("search is %d bytes, limit is %d", len(search), MaxSearchLength))
	}
	return nil
}

func checkHistory(mode guard.HistoryMode) error {
	switch mode {
	case "", guard.HistoryPush, guard.HistoryReplace:
		return nil
	}
	return qerrors.New("Q140").WithDetail(fmt.Sprintf("history mode %q", mode))
}
