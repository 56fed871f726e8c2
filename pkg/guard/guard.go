package guard

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/query"
)

// Guard synchronizes typed state of type map[string]V with an Adapter.
// It is safe for concurrent use.
type Guard[V any] struct {
	adapter  Adapter
	resolver Resolver[V]
	defaults map[string]V
	allowed  []string
	policy   UnknownPolicy
	history  HistoryMode

	logger   *slog.Logger
	observer Observer
	onError  func(error)

	// mu protects cache. It is never held while calling the adapter's
	// SetSearch, a patch function or listeners.
	mu    sync.Mutex
	cache Snapshot[V]

	listenersMu sync.Mutex
	listeners   map[uint64]func()
	nextID      uint64

	unsubscribeAdapter func()
	closeOnce          sync.Once
}

// New creates a Guard, resolves the adapter's current search string and
// subscribes to the adapter.
func New[V any](opts Options[V]) (*Guard[V], error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}

	g := &Guard[V]{
		adapter:   opts.Adapter,
		resolver:  opts.Resolver,
		defaults:  cloneValues(opts.Default),
		allowed:   slices.Sorted(maps.Keys(opts.Default)),
		policy:    opts.UnknownPolicy,
		history:   opts.History,
		logger:    opts.Logger.With("component", "guard"),
		observer:  opts.Observer,
		onError:   opts.OnError,
		listeners: make(map[uint64]func()),
	}

	search := query.Normalize(g.adapter.Search())
	next, err := g.resolve(search)
	if err != nil {
		return nil, err
	}
	g.cache = next

	g.unsubscribeAdapter = g.adapter.Subscribe(g.onAdapterChange)
	return g, nil
}

// AllowedKeys returns the keys owned by this guard, sorted.
func (g *Guard[V]) AllowedKeys() []string {
	return slices.Clone(g.allowed)
}

// Default returns a copy of the default typed value.
func (g *Guard[V]) Default() map[string]V {
	return cloneValues(g.defaults)
}

// Search returns the current normalized search string.
func (g *Guard[V]) Search() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.recomputeLocked(); err != nil {
		return "", err
	}
	return g.cache.Search, nil
}

// Raw returns the current raw mapping.
func (g *Guard[V]) Raw() (query.Raw, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.recomputeLocked(); err != nil {
		return nil, err
	}
	return g.cache.Raw.Clone(), nil
}

// Queries returns the current typed state.
func (g *Guard[V]) Queries() (map[string]V, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.recomputeLocked(); err != nil {
		return nil, err
	}
	return cloneValues(g.cache.Queries), nil
}

// Meta returns the metadata of the last resolve.
func (g *Guard[V]) Meta() (Meta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.recomputeLocked(); err != nil {
		return Meta{}, err
	}
	return g.cache.Meta.clone(), nil
}

// Snapshot returns search, raw, queries and meta from a single recompute.
func (g *Guard[V]) Snapshot() (Snapshot[V], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.recomputeLocked(); err != nil {
		return Snapshot[V]{}, err
	}
	return g.cache.clone(), nil
}

// SetQueries replaces the typed state with next.
//
// Under Keep the serialized value is overlaid on the current raw mapping.
// Under Drop the current raw mapping is discarded and only owned keys of
// the serialized value are written.
func (g *Guard[V]) SetQueries(next map[string]V, opts ...UpdateOption) (err error) {
	cfg, err := g.updateConfig(opts)
	if err != nil {
		return err
	}
	defer func() { g.observer.ObserveWrite("set_queries", cfg.history, err) }()

	current, err := g.Snapshot()
	if err != nil {
		return err
	}
	serialized, err := g.serialize(next)
	if err != nil {
		return err
	}
	return g.write(overlay(current.Raw, serialized, g.allowed, g.policy), cfg.history)
}

// Set applies patch to the current typed state.
func (g *Guard[V]) Set(patch *Patch[V], opts ...UpdateOption) error {
	return g.Update(func(map[string]V) *Patch[V] { return patch }, opts...)
}

// Update computes a patch from the current typed state and applies it.
// fn receives a copy and runs without any guard lock held.
//
// Deleted keys are removed from the raw base before the serialized value is
// overlaid, so they leave the search string unless Serialize emits them.
func (g *Guard[V]) Update(fn func(prev map[string]V) *Patch[V], opts ...UpdateOption) (err error) {
	cfg, err := g.updateConfig(opts)
	if err != nil {
		return err
	}
	defer func() { g.observer.ObserveWrite("set", cfg.history, err) }()

	current, err := g.Snapshot()
	if err != nil {
		return err
	}
	nextQueries, deleted := fn(cloneValues(current.Queries)).apply(current.Queries)

	serialized, err := g.serialize(nextQueries)
	if err != nil {
		return err
	}

	base := applyPolicy(current.Raw, g.allowed, g.policy)
	base = query.OmitKeys(base, deleted...)
	return g.write(query.Merge(base, serialized), cfg.history)
}

// Reset clears owned keys, or with WriteDefaults writes the default value.
func (g *Guard[V]) Reset(opts ...UpdateOption) (err error) {
	cfg, err := g.updateConfig(opts)
	if err != nil {
		return err
	}
	defer func() { g.observer.ObserveWrite("reset", cfg.history, err) }()

	current, err := g.Snapshot()
	if err != nil {
		return err
	}

	if cfg.mode == ResetWriteDefaults {
		serialized, err := g.serialize(g.defaults)
		if err != nil {
			return err
		}
		return g.write(overlay(current.Raw, serialized, g.allowed, g.policy), cfg.history)
	}

	return g.write(query.OmitKeys(current.Raw, g.allowed...), cfg.history)
}

// Subscribe registers listener. It is called after every recompute caused
// by an adapter notification and after every write.
//
// Unsubscribing the last listener does not detach the guard from its
// adapter; call Close for that.
func (g *Guard[V]) Subscribe(listener func()) (unsubscribe func()) {
	g.listenersMu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = listener
	g.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.listenersMu.Lock()
			delete(g.listeners, id)
			g.listenersMu.Unlock()
		})
	}
}

// Close detaches the guard from its adapter. The guard keeps answering
// reads and writes but no longer reacts to adapter notifications.
func (g *Guard[V]) Close() {
	g.closeOnce.Do(func() {
		if g.unsubscribeAdapter != nil {
			g.unsubscribeAdapter()
		}
	})
}

func (g *Guard[V]) onAdapterChange() {
	g.mu.Lock()
	err := g.recomputeLocked()
	g.mu.Unlock()
	if err != nil {
		g.logger.Error("recompute after adapter change failed", "error", err)
		if g.onError != nil {
			g.onError(err)
		}
		return
	}
	g.notify()
}

// write persists raw through the adapter, then recomputes and notifies
// whether or not the adapter already announced the change.
func (g *Guard[V]) write(raw query.Raw, history HistoryMode) error {
	search := query.Encode(raw)
	g.logger.Debug("write", "search", search, "history", history)

	if err := g.adapter.SetSearch(search, UpdateOptions{History: history}); err != nil {
		return qerrors.New("Q120").Wrap(err)
	}

	g.mu.Lock()
	err := g.recomputeLocked()
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.notify()
	return nil
}

// recomputeLocked refreshes the cache when the adapter's search string
// changed. The cache is replaced only after a successful resolve.
func (g *Guard[V]) recomputeLocked() error {
	search := query.Normalize(g.adapter.Search())
	if search == g.cache.Search {
		return nil
	}
	next, err := g.resolve(search)
	if err != nil {
		return err
	}
	g.cache = next
	return nil
}

func (g *Guard[V]) resolve(search string) (Snapshot[V], error) {
	raw := query.Decode(search)

	start := time.Now()
	resolved, err := g.resolver.Resolve(ResolveInput{Search: search, Raw: raw.Clone()})
	var meta Meta
	if resolved.Meta != nil {
		meta = resolved.Meta.clone()
	}
	g.observer.ObserveResolve(time.Since(start), meta, err)
	if err != nil {
		return Snapshot[V]{}, qerrors.New("Q110").Wrap(err)
	}

	g.logger.Debug("resolved", "search", search, "used_default", meta.UsedDefault, "issues", len(meta.Issues))
	return Snapshot[V]{
		Search:  search,
		Raw:     raw,
		Queries: cloneValues(resolved.Value),
		Meta:    meta,
	}, nil
}

func (g *Guard[V]) serialize(value map[string]V) (query.Raw, error) {
	raw, err := g.resolver.Serialize(cloneValues(value))
	if err != nil {
		return nil, qerrors.New("Q111").Wrap(err)
	}
	return raw, nil
}

func (g *Guard[V]) notify() {
	g.listenersMu.Lock()
	listeners := make([]func(), 0, len(g.listeners))
	for _, l := range g.listeners {
		listeners = append(listeners, l)
	}
	g.listenersMu.Unlock()

	for _, l := range listeners {
		l()
	}
	g.observer.ObserveNotify(len(listeners))
}
