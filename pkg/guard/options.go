package guard

import (
	"fmt"
	"log/slog"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
)

// Options configures a Guard.
type Options[V any] struct {
	// Adapter reads and writes the search string. Required.
	Adapter Adapter

	// Resolver converts between raw parameters and typed state. Required.
	Resolver Resolver[V]

	// Default is the default typed value. Its keys are the keys the guard owns.
	Default map[string]V

	// UnknownPolicy controls keys the guard does not own on write.
	// Default: Keep.
	UnknownPolicy UnknownPolicy

	// History is the history mode used when a write does not specify one.
	// Default: HistoryReplace.
	History HistoryMode

	// Logger receives debug traces and notification-path failures.
	// Default: slog.Default().
	Logger *slog.Logger

	// Observer receives resolve, write and notify measurements.
	Observer Observer

	// OnError is called when a recompute triggered by an adapter
	// notification fails. Such failures have no caller to return to.
	OnError func(error)
}

func (o *Options[V]) applyDefaults() error {
	if o.Adapter == nil {
		return qerrors.New("Q101")
	}
	if o.Resolver == nil {
		return qerrors.New("Q102")
	}
	if o.UnknownPolicy == "" {
		o.UnknownPolicy = Keep
	}
	if o.History == "" {
		o.History = HistoryReplace
	}
	if !o.UnknownPolicy.valid() {
		return qerrors.New("Q103").WithDetail(fmt.Sprintf("unknown policy %q", o.UnknownPolicy))
	}
	if !o.History.valid() {
		return qerrors.New("Q103").WithDetail(fmt.Sprintf("history mode %q", o.History))
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return nil
}

// UpdateOption is a functional option for write operations.
type UpdateOption interface {
	applyUpdate(*updateConfig)
}

type updateConfig struct {
	history HistoryMode
	mode    ResetMode
}

// Mode options as values to read naturally at call sites:
//
//	g.Set(patch, guard.Push)
//	g.Reset(guard.WriteDefaults)
var (
	// Push adds a new history entry for this write.
	Push UpdateOption = historyOption{mode: HistoryPush}

	// Replace replaces the current history entry for this write.
	Replace UpdateOption = historyOption{mode: HistoryReplace}

	// WriteDefaults makes Reset serialize the default value.
	WriteDefaults UpdateOption = resetOption{mode: ResetWriteDefaults}

	// ClearOwned makes Reset remove owned keys. This is the default.
	ClearOwned UpdateOption = resetOption{mode: ResetClear}
)

type historyOption struct {
	mode HistoryMode
}

func (o historyOption) applyUpdate(c *updateConfig) {
	c.history = o.mode
}

// WithHistory selects the history mode for a write.
func WithHistory(mode HistoryMode) UpdateOption {
	return historyOption{mode: mode}
}

type resetOption struct {
	mode ResetMode
}

func (o resetOption) applyUpdate(c *updateConfig) {
	c.mode = o.mode
}

// WithResetMode selects the Reset behavior.
func WithResetMode(mode ResetMode) UpdateOption {
	return resetOption{mode: mode}
}

func (g *Guard[V]) updateConfig(opts []UpdateOption) (updateConfig, error) {
	cfg := updateConfig{history: g.history, mode: ResetClear}
	for _, opt := range opts {
		if opt != nil {
			opt.applyUpdate(&cfg)
		}
	}
	if cfg.history == "" {
		cfg.history = g.history
	}
	if cfg.mode == "" {
		cfg.mode = ResetClear
	}
	if !cfg.history.valid() {
		return cfg, qerrors.New("Q103").WithDetail(fmt.Sprintf("history mode %q", cfg.history))
	}
	if !cfg.mode.valid() {
		return cfg, qerrors.New("Q103").WithDetail(fmt.Sprintf("reset mode %q", cfg.mode))
	}
	return cfg, nil
}
