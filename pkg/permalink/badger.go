package permalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "link/"

// BadgerStore keeps links in a Badger database.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens or creates a Badger database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("permalink: create %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storeError("open badger", err)
	}
	return &BadgerStore{db: db}, nil
}

// Put implements Store.
func (s *BadgerStore) Put(_ context.Context, search string) (Link, error) {
	link := newLink(search)
	data, err := json.Marshal(link)
	if err != nil {
		return Link{}, storeError("encode link", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+link.ID), data)
	})
	if err != nil {
		return Link{}, storeError("write link", err)
	}
	return link, nil
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, id string) (Link, error) {
	var link Link
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &link)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Link{}, ErrNotFound
	}
	if err != nil {
		return Link{}, storeError("read link", err)
	}
	return link, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
