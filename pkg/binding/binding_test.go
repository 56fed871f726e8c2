package binding_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vango-dev/queryguard/pkg/adapter"
	"github.com/vango-dev/queryguard/pkg/binding"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/resolver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T, initial string) (*binding.Store[any], *adapter.Memory) {
	t.Helper()
	mem := adapter.NewMemory(initial)
	g, err := guard.New(guard.Options[any]{
		Adapter:  mem,
		Resolver: resolver.Passthrough(),
		Default:  map[string]any{"q": ""},
	})
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return binding.New(g), mem
}

func TestSnapshotIsMonotonic(t *testing.T) {
	s, mem := newStore(t, "?q=a")

	first, err := s.Snapshot()
	require.NoError(t, err)
	again, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)
	assert.Equal(t, "?q=a", again.Search)

	mem.Mutate("?q=b")
	next, err := s.Snapshot()
	require.NoError(t, err)
	assert.Greater(t, next.Version, first.Version)
	assert.Equal(t, "b", next.Queries["q"])
}

func TestPoll(t *testing.T) {
	s, mem := newStore(t, "?q=a")

	_, changed, err := s.Poll()
	require.NoError(t, err)
	assert.True(t, changed, "first poll delivers")

	_, changed, err = s.Poll()
	require.NoError(t, err)
	assert.False(t, changed)

	mem.Navigate("?q=b")
	v, changed, err := s.Poll()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "?q=b", v.Search)
}

func TestSubscribeSignalsChanges(t *testing.T) {
	s, mem := newStore(t, "")

	calls := 0
	unsub := s.Subscribe(func() { calls++ })
	mem.Navigate("?q=x")
	assert.Equal(t, 1, calls)
	unsub()
}

func TestWatch(t *testing.T) {
	s, _ := newStore(t, "?q=a")
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Watch(ctx)

	select {
	case v := <-ch:
		assert.Equal(t, "?q=a", v.Search)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, s.Guard().Set(guard.NewPatch[any]().Set("q", "b")))
	select {
	case v := <-ch:
		assert.Equal(t, "?q=b", v.Search)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after write")
	}

	cancel()
	for range ch {
	}
}
