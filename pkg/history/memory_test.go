package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStack(t *testing.T) {
	m := NewMemory("?a=1")
	require.NoError(t, m.PushState("?a=2"))
	require.NoError(t, m.PushState("?a=3"))
	assert.Equal(t, "?a=3", m.Location())
	assert.Equal(t, 3, m.Len())

	assert.True(t, m.Back())
	assert.Equal(t, "?a=2", m.Location())

	require.NoError(t, m.ReplaceState("?a=20"))
	assert.Equal(t, "?a=20", m.Location())
	assert.Equal(t, 3, m.Len())

	// pushing discards forward entries
	require.NoError(t, m.PushState("?b=1"))
	assert.Equal(t, 3, m.Len())
	assert.False(t, m.Forward())

	assert.True(t, m.Go(-2))
	assert.Equal(t, "?a=1", m.Location())
	assert.False(t, m.Back())
	assert.False(t, m.Go(0))
}

func TestMemoryPopState(t *testing.T) {
	m := NewMemory("")
	var fired int
	remove := m.OnPopState(func() { fired++ })
	assert.Equal(t, 1, m.Listeners())

	require.NoError(t, m.PushState("?x=1"))
	require.NoError(t, m.ReplaceState("?x=2"))
	assert.Equal(t, 0, fired, "push and replace must not fire popstate")

	m.Back()
	assert.Equal(t, 1, fired)
	m.PopState()
	assert.Equal(t, 2, fired)

	remove()
	assert.Equal(t, 0, m.Listeners())
	m.Forward()
	assert.Equal(t, 2, fired)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	m := NewMemory("")
	h, ok := FromContext(WithHost(context.Background(), m))
	require.True(t, ok)
	assert.Same(t, m, h)
}
