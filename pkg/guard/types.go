package guard

import (
	"github.com/vango-dev/queryguard/pkg/query"
)

// HistoryMode determines how a write is recorded in the host's history.
type HistoryMode string

const (
	// HistoryReplace replaces the current history entry.
	HistoryReplace HistoryMode = "replace"

	// HistoryPush adds a new history entry.
	HistoryPush HistoryMode = "push"
)

// UnknownPolicy decides what happens to keys the guard does not own on write.
type UnknownPolicy string

const (
	// Keep preserves keys not owned by the guard.
	Keep UnknownPolicy = "keep"

	// Drop removes keys not owned by the guard.
	Drop UnknownPolicy = "drop"
)

// ResetMode selects the Reset behavior.
type ResetMode string

const (
	// ResetClear removes owned keys from the search string.
	ResetClear ResetMode = "clear"

	// ResetWriteDefaults serializes the default value into the search string.
	ResetWriteDefaults ResetMode = "write-defaults"
)

// UpdateOptions are passed to Adapter.SetSearch.
type UpdateOptions struct {
	History HistoryMode
}

// Adapter reads, writes and watches the raw search string of a host.
type Adapter interface {
	// Search returns the current search string. It is never empty;
	// "?" is returned when there are no parameters.
	Search() string

	// SetSearch persists next and notifies this adapter's subscribers.
	SetSearch(next string, opts UpdateOptions) error

	// Subscribe registers listener for changes to the search string.
	Subscribe(listener func()) (unsubscribe func())
}

// Snapshot is a consistent view of the guard's cache.
type Snapshot[V any] struct {
	Search  string
	Raw     query.Raw
	Queries map[string]V
	Meta    Meta
}

func (s Snapshot[V]) clone() Snapshot[V] {
	return Snapshot[V]{
		Search:  s.Search,
		Raw:     s.Raw.Clone(),
		Queries: cloneValues(s.Queries),
		Meta:    s.Meta.clone(),
	}
}

func cloneValues[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m HistoryMode) valid() bool {
	return m == HistoryReplace || m == HistoryPush
}

func (p UnknownPolicy) valid() bool {
	return p == Keep || p == Drop
}

func (m ResetMode) valid() bool {
	return m == ResetClear || m == ResetWriteDefaults
}
