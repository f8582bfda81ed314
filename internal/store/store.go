// Package store persists breach-cache entries and archived snapshots.
// Backends: in-process memory, SQLite and PostgreSQL. The SQL backends
// migrate their schema on open.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/vulnverified/posture/internal/engine"
)

// ErrNotFound is returned when a key or domain has no stored row.
var ErrNotFound = errors.New("store: not found")

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations
var migrations embed.FS

// CacheEntry is one breach-registry payload keyed by hashed domain.
type CacheEntry struct {
	Key       string
	Payload   []byte
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Store is implemented by every backend.
type Store interface {
	GetCacheEntry(ctx context.Context, key string) (CacheEntry, error)
	PutCacheEntry(ctx context.Context, e CacheEntry) error
	DeleteCacheEntry(ctx context.Context, key string) error

	SaveSnapshot(ctx context.Context, s *engine.Snapshot) error
	LatestSnapshot(ctx context.Context, domain string) (*engine.Snapshot, error)

	Close() error
}

// Open returns the backend named by driver. dsn is a file path (or ":memory:")
// for sqlite and a connection URL for postgres; memory ignores it.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("store: sqlite requires a dsn")
		}
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("store: postgres requires a dsn")
		}
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
