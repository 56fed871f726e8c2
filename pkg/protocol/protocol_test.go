package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/query"
)

func TestDecodeClientFrames(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{
			name: "hello",
			in:   `{"type":"hello","seq":1,"data":{"version":1,"search":"?q=go"}}`,
			want: &Hello{Version: 1, Search: "?q=go"},
		},
		{
			name: "popstate",
			in:   `{"type":"popstate","data":{"search":""}}`,
			want: &PopState{},
		},
		{
			name: "set_queries",
			in:   `{"type":"set_queries","data":{"queries":{"page":2},"history":"push"}}`,
			want: &SetQueries{Queries: map[string]any{"page": 2.0}, History: guard.HistoryPush},
		},
		{
			name: "reset_without_data",
			in:   `{"type":"reset"}`,
			want: &Reset{},
		},
		{
			name: "reset_write_defaults",
			in:   `{"type":"reset","data":{"mode":"write-defaults"}}`,
			want: &Reset{Mode: guard.ResetWriteDefaults},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, msg, err := Decode([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, msg)
			assert.True(t, msg.FrameType().ClientToServer())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		code string
	}{
		{"not_json", `{`, "Q140"},
		{"unknown_type", `{"type":"teleport"}`, "Q140"},
		{"bad_payload", `{"type":"hello","data":{"search":5}}`, "Q140"},
		{"bad_history", `{"type":"set","data":{"patch":{},"history":"sideways"}}`, "Q140"},
		{"bad_reset_mode", `{"type":"reset","data":{"mode":"wipe"}}`, "Q140"},
		{"too_large", `{"type":"hello","data":{"search":"` + strings.Repeat("a", MaxFrameSize) + `"}}`, "Q141"},
		{"search_too_long", `{"type":"popstate","data":{"search":"` + strings.Repeat("a", MaxSearchLength+1) + `"}}`, "Q140"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode([]byte(tc.in))
			require.Error(t, err)
			assert.Equal(t, tc.code, qerrors.Code(err))
		})
	}
	_, _, err := Decode([]byte(`{`))
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestSetToPatch(t *testing.T) {
	_, msg, err := Decode([]byte(`{"type":"set","data":{"patch":{"q":"go","page":null,"tags":["a","b"]}}}`))
	require.NoError(t, err)

	p, err := msg.(*Set).ToPatch()
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	// Apply through a guard-shaped round trip: delete page, set the rest.
	prev := map[string]any{"page": 2.0, "q": "old"}
	g := patchResult(t, p, prev)
	assert.Equal(t, map[string]any{"q": "go", "tags": []any{"a", "b"}}, g)
}

// patchResult applies p with a Set call against an in-memory resolver.
func patchResult(t *testing.T, p *guard.Patch[any], prev map[string]any) map[string]any {
	t.Helper()
	var got map[string]any
	r := guard.ResolverFuncs[any]{
		ResolveFunc: func(guard.ResolveInput) (guard.Resolved[any], error) {
			if got != nil {
				return guard.Resolved[any]{Value: got}, nil
			}
			return guard.Resolved[any]{Value: prev}, nil
		},
		SerializeFunc: func(v map[string]any) (query.Raw, error) {
			got = v
			return query.Raw{"n": query.One("1")}, nil
		},
	}
	g, err := guard.New(guard.Options[any]{Adapter: &stubAdapter{search: "?"}, Resolver: r})
	require.NoError(t, err)
	require.NoError(t, g.Set(p))
	return got
}

type stubAdapter struct{ search string }

func (a *stubAdapter) Search() string { return a.search }
func (a *stubAdapter) SetSearch(next string, _ guard.UpdateOptions) error {
	a.search = next
	return nil
}
func (a *stubAdapter) Subscribe(func()) func() { return func() {} }

func TestEncodeServerFrames(t *testing.T) {
	data, err := Encode(4, &State{
		Version: 2,
		Search:  "?q=go",
		Raw:     query.Raw{"q": query.One("go"), "tag": query.Many("a")},
		Queries: map[string]any{"q": "go"},
		Meta:    guard.Meta{CleanedKeys: []string{"utm"}},
	})
	require.NoError(t, err)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "state", envelope["type"])
	assert.EqualValues(t, 4, envelope["seq"])

	f, msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeState, f.Type)
	state := msg.(*State)
	assert.Equal(t, "?q=go", state.Search)
	assert.True(t, state.Raw.Equal(query.Raw{"q": query.One("go"), "tag": query.Many("a")}))
	assert.Equal(t, []string{"utm"}, state.Meta.CleanedKeys)
	assert.False(t, f.Type.ClientToServer())
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(0, &URL{Search: strings.Repeat("x", MaxFrameSize)})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestNewErrorMessage(t *testing.T) {
	em := NewErrorMessage(qerrors.New("Q142"), true)
	assert.Equal(t, "Q142", em.Code)
	assert.True(t, em.Fatal)
	assert.Contains(t, em.Message, "Q142")
}
