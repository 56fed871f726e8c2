package adapter

import "sync"

// broadcaster fans out change notifications and holds one shared
// underlying resource while it has at least one subscriber.
type broadcaster struct {
	mu        sync.Mutex
	listeners map[uint64]func()
	nextID    uint64

	// acquire is called when the first listener subscribes; the function
	// it returns is called after the last listener unsubscribes.
	acquire func() (release func())
	release func()
}

func (b *broadcaster) subscribe(listener func()) func() {
	b.mu.Lock()
	if b.listeners == nil {
		b.listeners = make(map[uint64]func())
	}
	if len(b.listeners) == 0 && b.acquire != nil {
		b.release = b.acquire()
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			var release func()
			if len(b.listeners) == 0 {
				release = b.release
				b.release = nil
			}
			b.mu.Unlock()

			if release != nil {
				release()
			}
		})
	}
}

func (b *broadcaster) notify() {
	b.mu.Lock()
	listeners := make([]func(), 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l()
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *broadcaster) holding() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.release != nil
}
