package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vulnverified/posture/internal/engine"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migrate(ctx, goose.DialectPostgres, db, "postgres"); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) GetCacheEntry(ctx context.Context, key string) (CacheEntry, error) {
	var e CacheEntry
	err := p.Pool.QueryRow(ctx,
		`SELECT key, payload, cached_at, expires_at FROM breach_cache WHERE key = $1`, key,
	).Scan(&e.Key, &e.Payload, &e.CachedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, err
	}
	return e, nil
}

func (p *Postgres) PutCacheEntry(ctx context.Context, e CacheEntry) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO breach_cache (key, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`,
		e.Key, e.Payload, e.CachedAt, e.ExpiresAt)
	return err
}

func (p *Postgres) DeleteCacheEntry(ctx context.Context, key string) error {
	_, err := p.Pool.Exec(ctx, `DELETE FROM breach_cache WHERE key = $1`, key)
	return err
}

func (p *Postgres) SaveSnapshot(ctx context.Context, s *engine.Snapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = p.Pool.Exec(ctx,
		`INSERT INTO snapshots (domain, completed_at, body) VALUES ($1, $2, $3)`,
		s.Domain, s.CompletedAt, string(body))
	return err
}

func (p *Postgres) LatestSnapshot(ctx context.Context, domain string) (*engine.Snapshot, error) {
	var body []byte
	err := p.Pool.QueryRow(ctx, `
		SELECT body FROM snapshots WHERE domain = $1
		ORDER BY completed_at DESC, id DESC LIMIT 1`, domain,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s engine.Snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}
