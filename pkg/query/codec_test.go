package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "?"},
		{"?", "?"},
		{"a=1", "?a=1"},
		{"?a=1", "?a=1"},
		{"??a", "??a"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "Normalize must be idempotent")
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		search string
		want   Raw
	}{
		{name: "empty", search: "", want: Raw{}},
		{name: "bare marker", search: "?", want: Raw{}},
		{name: "single", search: "?q=hello", want: Raw{"q": One("hello")}},
		{name: "no marker", search: "q=hello", want: Raw{"q": One("hello")}},
		{name: "repeated key", search: "?tag=b&x=1&tag=a", want: Raw{"tag": Many("b", "a"), "x": One("1")}},
		{name: "plus and escapes", search: "?q=hello+world&p=%26%3D", want: Raw{"q": One("hello world"), "p": One("&=")}},
		{name: "key without value", search: "?flag&x=", want: Raw{"flag": One(""), "x": One("")}},
		{name: "empty segments", search: "?&&a=1&", want: Raw{"a": One("1")}},
		{name: "invalid escape kept", search: "?q=100%", want: Raw{"q": One("100%")}},
		{name: "escaped key", search: "?a%20b=1", want: Raw{"a b": One("1")}},
		{name: "valid escapes beside invalid", search: "?q=a%20b%zz", want: Raw{"q": One("a b%zz")}},
		{name: "truncated escape", search: "?q=%2", want: Raw{"q": One("%2")}},
		{name: "escaped plus", search: "?q=1%2B1", want: Raw{"q": One("1+1")}},
		{name: "utf-8 escapes", search: "?q=%E6%97%A5", want: Raw{"q": One("日")}},
		{name: "invalid utf-8 replaced", search: "?q=%FFa%FE", want: Raw{"q": One("\uFFFDa\uFFFD")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.search)
			assert.True(t, tt.want.Equal(got), "got %#v, want %#v", got, tt.want)
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
		want string
	}{
		{name: "nil", raw: nil, want: "?"},
		{name: "empty", raw: Raw{}, want: "?"},
		{name: "sorted keys", raw: Raw{"b": One("2"), "a": One("1")}, want: "?a=1&b=2"},
		{name: "list order kept", raw: Raw{"tag": Many("z", "a")}, want: "?tag=z&tag=a"},
		{name: "empty list omitted", raw: Raw{"tag": Many(), "a": One("1")}, want: "?a=1"},
		{name: "escaping", raw: Raw{"q": One("a b&c")}, want: "?q=a+b%26c"},
		{name: "zero value", raw: Raw{"q": {}}, want: "?q="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.raw))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []Raw{
		{},
		{"q": One("")},
		{"q": One("hello world"), "page": One("2")},
		{"weird key": One("100% & = + ?"), "unicode": One("日本")},
	}
	for _, m := range cases {
		got := Decode(Encode(m))
		assert.True(t, m.Equal(got), "round trip of %#v gave %#v", m, got)
	}
}

func TestListRoundTrip(t *testing.T) {
	m := Raw{"tag": Many("a", "b", "a")}
	assert.True(t, m.Equal(Decode(Encode(m))))

	// a one-element list comes back as a single value
	single := Decode(Encode(Raw{"tag": Many("a")}))
	assert.False(t, single["tag"].IsList())
	assert.Equal(t, "a", single["tag"].String())
}

func TestOmitPickMerge(t *testing.T) {
	raw := Raw{"a": One("1"), "b": One("2"), "c": Many("3", "4")}

	omitted := OmitKeys(raw, "a", "missing")
	assert.Equal(t, []string{"b", "c"}, omitted.Keys())
	assert.Len(t, raw, 3, "OmitKeys must not mutate its input")

	picked := PickKeys(raw, "a", "missing")
	assert.Equal(t, []string{"a"}, picked.Keys())

	merged := Merge(raw, Raw{"a": One("9"), "d": One("4")})
	assert.Equal(t, "9", merged["a"].String())
	assert.Equal(t, []string{"a", "b", "c", "d"}, merged.Keys())
	assert.Equal(t, "1", raw["a"].String())
}

func TestValue(t *testing.T) {
	v := Many("a", "b")
	vals := v.Strings()
	vals[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, v.Strings())
	assert.Equal(t, 2, v.Len())
	assert.True(t, Many().IsEmpty())
	assert.False(t, One("").IsEmpty())
	assert.False(t, One("a").Equal(Many("a")))

	var zero Value
	assert.False(t, zero.IsEmpty())
	assert.True(t, zero.Equal(One("")))
	assert.Equal(t, []string{""}, zero.Strings())
	assert.Equal(t, 1, zero.Len())

	got, ok := Raw{"a": One("x")}.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "x", got)
}

func TestValueJSON(t *testing.T) {
	raw := Raw{"q": One("go"), "tag": Many("a", "b"), "none": Many()}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":"go","tag":["a","b"],"none":[]}`, string(data))

	var back Raw
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, raw.Equal(back))

	var bad Value
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &bad))
}
