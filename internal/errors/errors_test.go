package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{name: "capability error", code: "Q001", wantMsg: "Interactive history host required", wantCat: CategoryCapability},
		{name: "config error", code: "Q101", wantMsg: "Adapter is required", wantCat: CategoryConfig},
		{name: "protocol error", code: "Q140", wantMsg: "Invalid frame", wantCat: CategoryProtocol},
		{name: "unknown error code", code: "Q999", wantMsg: "Unknown error", wantCat: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			assert.Equal(t, tt.wantMsg, err.Message)
			assert.Equal(t, tt.wantCat, err.Category)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New("Q110")
	cause := stderrors.New("boom")
	wrapped := fmt.Errorf("guard: %w", New("Q110").Wrap(cause))

	assert.True(t, stderrors.Is(wrapped, sentinel))
	assert.True(t, stderrors.Is(wrapped, cause))
	assert.False(t, stderrors.Is(wrapped, New("Q111")))
	assert.Equal(t, "Q110", Code(wrapped))
	assert.Equal(t, "", Code(cause))
}

func TestIsWithoutCode(t *testing.T) {
	a := Newf(CategoryCLI, "bad %s", "flag")
	b := Newf(CategoryCLI, "bad %s", "flag")

	assert.True(t, stderrors.Is(a, a))
	assert.False(t, stderrors.Is(a, b))
	assert.Equal(t, "bad flag", a.Error())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil, "Q100"))

	qe := New("Q101")
	assert.Same(t, qe, FromError(qe, "Q100"))

	wrapped := FromError(stderrors.New("disk full"), "Q120")
	require.NotNil(t, wrapped)
	assert.Equal(t, "Q120: Persist failed: disk full", wrapped.Error())
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("Q001").WithSuggestion("Use adapter.NewMemory").Wrap(stderrors.New("no host"))
	out := err.Format()

	assert.Contains(t, out, "ERROR Q001: Interactive history host required")
	assert.Contains(t, out, "Cause: no host")
	assert.Contains(t, out, "Hint: Use adapter.NewMemory")
	assert.Equal(t, "Q001: Interactive history host required: no host", err.FormatCompact())
	assert.Contains(t, err.FormatJSON(), `"code":"Q001"`)
	assert.Contains(t, err.FormatJSON(), `"category":"capability"`)
}

func TestPrintError(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	PrintError(&buf, fmt.Errorf("serve: %w", New("Q100")))
	assert.Contains(t, buf.String(), "ERROR Q100: Invalid configuration")

	buf.Reset()
	PrintError(&buf, stderrors.New("plain"))
	assert.Equal(t, "\nERROR: plain\n\n", buf.String())
}

func TestWrapText(t *testing.T) {
	lines := wrapText(strings.Repeat("word ", 40), 20)
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 20)
	}
	assert.Nil(t, wrapText("", 10))
}
