// Package permalink stores search strings under short IDs so that a view
// can be shared as a link.
//
// Backends: in-memory, SQLite (modernc.org/sqlite), Badger and S3. All of
// them return ErrNotFound for unknown IDs.
package permalink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/query"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = qerrors.New("Q121")

// Link is a stored search string.
type Link struct {
	ID        string    `json:"id"`
	Search    string    `json:"search"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists links.
type Store interface {
	// Put stores search under a new ID.
	Put(ctx context.Context, search string) (Link, error)

	// Get returns the link stored under id.
	Get(ctx context.Context, id string) (Link, error)

	// Close releases the store's resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendS3     = "s3"
)

// Config selects and configures a backend.
type Config struct {
	Backend string

	// Path is the SQLite file or the Badger directory.
	Path string

	// S3 settings.
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		s, err := OpenBadger(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendS3:
		if cfg.Bucket == "" {
			return nil, qerrors.New("Q100").WithDetail("s3 link backend needs a bucket")
		}
		client := NewS3Client(cfg.Region, cfg.Endpoint)
		return NewS3Store(client, cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, qerrors.New("Q100").WithDetail(fmt.Sprintf("unknown link backend %q", cfg.Backend))
	}
}

// newLink builds a link with a fresh ID and normalized search.
func newLink(search string) Link {
	return Link{
		ID:        newID(),
		Search:    query.Normalize(search),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// newID returns a 12-character URL-safe ID taken from a random UUID.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func storeError(op string, err error) error {
	return qerrors.New("Q122").WithDetail(op).Wrap(err)
}
