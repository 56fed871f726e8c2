package adapter

import (
	"context"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/history"
	"github.com/vango-dev/queryguard/pkg/query"
)

// ErrNotInteractive is returned when no history host is available.
var ErrNotInteractive = qerrors.New("Q001")

// History adapts an interactive history.Host.
//
// It listens only to the host's popstate signal. Writes made through
// SetSearch are announced by the adapter itself; pushState or replaceState
// calls made behind its back are not observed until the next read.
//
// The popstate listener is attached when the first subscriber arrives and
// detached when the last one leaves.
type History struct {
	host history.Host
	b    broadcaster
}

var _ guard.Adapter = (*History)(nil)

// NewHistory returns a History adapter for the host carried by ctx.
func NewHistory(ctx context.Context) (*History, error) {
	h, ok := history.FromContext(ctx)
	if !ok {
		return nil, qerrors.New("Q001").
			WithSuggestion("Use adapter.NewMemory for non-interactive environments")
	}
	return ForHost(h)
}

// ForHost returns a History adapter for h.
func ForHost(h history.Host) (*History, error) {
	if h == nil {
		return nil, qerrors.New("Q001")
	}
	a := &History{host: h}
	a.b.acquire = func() func() {
		return a.host.OnPopState(a.b.notify)
	}
	return a, nil
}

// Search implements guard.Adapter.
func (a *History) Search() string {
	return query.Normalize(a.host.Location())
}

// SetSearch implements guard.Adapter. The default history mode is replace.
func (a *History) SetSearch(next string, opts guard.UpdateOptions) error {
	search := query.Normalize(next)

	var err error
	if opts.History == guard.HistoryPush {
		err = a.host.PushState(search)
	} else {
		err = a.host.ReplaceState(search)
	}
	if err != nil {
		return err
	}

	a.b.notify()
	return nil
}

// Subscribe implements guard.Adapter.
func (a *History) Subscribe(listener func()) func() {
	return a.b.subscribe(listener)
}

// Attached reports whether the popstate listener is currently attached.
func (a *History) Attached() bool {
	return a.b.holding()
}
