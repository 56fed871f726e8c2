// Package binding adapts a guard to consumers that pull snapshots after a
// change signal, such as UI frameworks and server sessions.
//
// A Store hands out the same snapshot, with the same version, until the
// guard's search string changes. Consumers can compare versions instead of
// deep-comparing state.
package binding

import (
	"context"
	"sync"

	"github.com/vango-dev/queryguard/pkg/guard"
)

// Versioned is a guard snapshot tagged with a version that increases each
// time the search string changes.
type Versioned[V any] struct {
	guard.Snapshot[V]
	Version uint64
}

// Store is a monotonic snapshot store over a guard.
type Store[V any] struct {
	g *guard.Guard[V]

	mu        sync.Mutex
	current   Versioned[V]
	loaded    bool
	delivered uint64
}

// New returns a Store over g.
func New[V any](g *guard.Guard[V]) *Store[V] {
	return &Store[V]{g: g}
}

// Guard returns the underlying guard.
func (s *Store[V]) Guard() *guard.Guard[V] {
	return s.g
}

// Subscribe registers listener for change signals. Listeners should call
// Snapshot or Poll to read the new state.
func (s *Store[V]) Subscribe(listener func()) (unsubscribe func()) {
	return s.g.Subscribe(listener)
}

// Snapshot returns the current snapshot. The version only moves when the
// guard's search string differs from the last one observed.
func (s *Store[V]) Snapshot() (Versioned[V], error) {
	snap, err := s.g.Snapshot()
	if err != nil {
		return Versioned[V]{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || snap.Search != s.current.Search {
		s.current = Versioned[V]{Snapshot: snap, Version: s.current.Version + 1}
		s.loaded = true
	}
	return s.current, nil
}

// Poll returns the current snapshot and whether its version differs from
// the one returned by the previous Poll.
func (s *Store[V]) Poll() (Versioned[V], bool, error) {
	v, err := s.Snapshot()
	if err != nil {
		return Versioned[V]{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Version == s.delivered {
		return v, false, nil
	}
	s.delivered = v.Version
	return v, true, nil
}

// Watch delivers a snapshot on the returned channel after every change
// until ctx is done. Intermediate versions may be skipped when the reader
// is slow; the latest one is always delivered. Failed recomputes are
// dropped.
func (s *Store[V]) Watch(ctx context.Context) <-chan Versioned[V] {
	out := make(chan Versioned[V])
	wake := make(chan struct{}, 1)
	signal := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	unsubscribe := s.Subscribe(signal)
	signal()

	go func() {
		defer close(out)
		defer unsubscribe()

		var last uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}

			v, err := s.Snapshot()
			if err != nil || v.Version == last {
				continue
			}
			select {
			case out <- v:
				last = v.Version
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
