// Package history models an interactive navigation host: something with a
// current location, push/replace history entries and a "history navigated"
// signal, like a browser tab.
//
// A server session attaches its Host to the request context; the reference
// adapter in pkg/adapter picks it up from there and refuses to work without
// one.
package history

import (
	"context"
)

// Host is an interactive history host.
type Host interface {
	// Location returns the current search string, possibly "".
	Location() string

	// PushState adds a history entry with the given search string.
	// It does not fire popstate listeners.
	PushState(search string) error

	// ReplaceState replaces the current history entry.
	// It does not fire popstate listeners.
	ReplaceState(search string) error

	// OnPopState registers fn for history traversal (back, forward) and
	// returns a function that removes it.
	OnPopState(fn func()) (remove func())
}

type hostKey struct{}

// WithHost returns a copy of ctx carrying h.
func WithHost(ctx context.Context, h Host) context.Context {
	return context.WithValue(ctx, hostKey{}, h)
}

// FromContext returns the Host carried by ctx.
func FromContext(ctx context.Context) (Host, bool) {
	if ctx == nil {
		return nil, false
	}
	h, ok := ctx.Value(hostKey{}).(Host)
	return h, ok && h != nil
}
