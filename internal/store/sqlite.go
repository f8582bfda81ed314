package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/vulnverified/posture/internal/engine"
)

// SQLite is a single-file store. Timestamps are stored as Unix nanoseconds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := migrate(ctx, goose.DialectSQLite3, db, "sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) GetCacheEntry(ctx context.Context, key string) (CacheEntry, error) {
	var (
		e                   CacheEntry
		cachedAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, payload, cached_at, expires_at FROM breach_cache WHERE key = ?`, key,
	).Scan(&e.Key, &e.Payload, &cachedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, err
	}
	e.CachedAt = time.Unix(0, cachedAt).UTC()
	e.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return e, nil
}

func (s *SQLite) PutCacheEntry(ctx context.Context, e CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breach_cache (key, payload, cached_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at`,
		e.Key, e.Payload, e.CachedAt.UnixNano(), e.ExpiresAt.UnixNano())
	return err
}

func (s *SQLite) DeleteCacheEntry(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM breach_cache WHERE key = ?`, key)
	return err
}

func (s *SQLite) SaveSnapshot(ctx context.Context, snap *engine.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (domain, completed_at, body) VALUES (?, ?, ?)`,
		snap.Domain, snap.CompletedAt.UnixNano(), string(body))
	return err
}

func (s *SQLite) LatestSnapshot(ctx context.Context, domain string) (*engine.Snapshot, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM snapshots WHERE domain = ?
		ORDER BY completed_at DESC, id DESC LIMIT 1`, domain,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
