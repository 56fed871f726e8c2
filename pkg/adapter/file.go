package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/query"
)

// File stores the search string in a file.
//
// Changes written by other processes are picked up with fsnotify. The
// watcher runs only while the adapter has subscribers. History modes are
// accepted and ignored: a file has no history.
type File struct {
	path   string
	logger *slog.Logger

	// writeMu serializes SetSearch calls.
	writeMu sync.Mutex

	b broadcaster
}

var _ guard.Adapter = (*File)(nil)

// FileOption configures a File adapter.
type FileOption func(*File)

// WithLogger sets the logger used for read and watch failures.
func WithLogger(logger *slog.Logger) FileOption {
	return func(f *File) {
		f.logger = logger
	}
}

// NewFile returns a File adapter for path, creating the file with an empty
// search string if it does not exist.
func NewFile(path string, opts ...FileOption) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("adapter: resolve %s: %w", path, err)
	}

	f := &File{path: abs, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "file-adapter", "path", abs)
	f.b.acquire = f.watch

	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(abs, []byte(query.Marker+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("adapter: create %s: %w", abs, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("adapter: stat %s: %w", abs, err)
	}
	return f, nil
}

// Path returns the absolute path of the backing file.
func (f *File) Path() string {
	return f.path
}

// Search implements guard.Adapter. A file that cannot be read reads as "?".
func (f *File) Search() string {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.logger.Warn("read search file", "error", err)
		return query.Marker
	}
	return query.Normalize(strings.TrimSpace(string(data)))
}

// SetSearch implements guard.Adapter. The file is replaced atomically.
func (f *File) SetSearch(next string, _ guard.UpdateOptions) error {
	f.writeMu.Lock()
	err := f.writeAtomic(query.Normalize(next) + "\n")
	f.writeMu.Unlock()
	if err != nil {
		return err
	}

	f.b.notify()
	return nil
}

// Subscribe implements guard.Adapter.
func (f *File) Subscribe(listener func()) func() {
	return f.b.subscribe(listener)
}

// Watching reports whether the file watcher is running.
func (f *File) Watching() bool {
	return f.b.holding()
}

func (f *File) writeAtomic(content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("adapter: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("adapter: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("adapter: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("adapter: replace %s: %w", f.path, err)
	}
	return nil
}

// watch starts an fsnotify watcher on the file's directory and returns the
// function that stops it. Directory watching survives atomic replacement of
// the file. It returns nil when the watcher cannot start; SetSearch still
// notifies in that case.
func (f *File) watch() func() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.logger.Error("start watcher", "error", err)
		return nil
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		f.logger.Error("watch directory", "error", err)
		return nil
	}

	// dispatching is set while listeners run on the watcher goroutine. A
	// listener may drop the last subscription, and the release it triggers
	// must not wait on the goroutine it is running on.
	var dispatching atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != f.path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
					f.logger.Debug("search file changed", "op", ev.Op.String())
					dispatching.Store(true)
					f.b.notify()
					dispatching.Store(false)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				f.logger.Warn("watcher error", "error", err)
			}
		}
	}()

	return func() {
		// Close also ends the loop: both channels are closed once it returns.
		w.Close()
		if dispatching.Load() {
			return
		}
		wg.Wait()
	}
}
