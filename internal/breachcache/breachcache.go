// Package breachcache puts a TTL cache in front of the breach registry.
// Entries are keyed by the SHA-256 of the normalized domain so the backing
// store never holds the domain itself.
package breachcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vulnverified/posture/internal/store"
)

// DefaultTTL is how long a registry answer is served from cache.
const DefaultTTL = 30 * 24 * time.Hour

// Store is the subset of store.Store the cache needs.
type Store interface {
	GetCacheEntry(ctx context.Context, key string) (store.CacheEntry, error)
	PutCacheEntry(ctx context.Context, e store.CacheEntry) error
	DeleteCacheEntry(ctx context.Context, key string) error
}

// FetchFunc loads a fresh payload from the registry.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Result is a payload and where it came from.
type Result struct {
	Payload   []byte
	CachedAt  time.Time
	FromCache bool
}

type Cache struct {
	store  Store
	ttl    time.Duration
	clock  clockwork.Clock
	logger *zap.Logger
	group  singleflight.Group
}

// New returns a cache over s. Zero ttl means DefaultTTL; nil clock and logger
// mean the real clock and a no-op logger.
func New(s Store, ttl time.Duration, clock clockwork.Clock, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: s, ttl: ttl, clock: clock, logger: logger}
}

// Key returns the cache key for domain.
func Key(domain string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(domain))))
	return hex.EncodeToString(sum[:])
}

// Get returns the live entry for domain. An expired entry is deleted and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, domain string) (Result, bool, error) {
	key := Key(domain)
	e, err := c.store.GetCacheEntry(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	if c.clock.Now().After(e.ExpiresAt) {
		if err := c.store.DeleteCacheEntry(ctx, key); err != nil {
			c.logger.Warn("purge expired breach cache entry", zap.String("key", key), zap.Error(err))
		}
		return Result{}, false, nil
	}
	return Result{Payload: e.Payload, CachedAt: e.CachedAt, FromCache: true}, true, nil
}

// Set stores payload for domain, expiring ttl from now, and returns the write time.
func (c *Cache) Set(ctx context.Context, domain string, payload []byte) (time.Time, error) {
	now := c.clock.Now()
	err := c.store.PutCacheEntry(ctx, store.CacheEntry{
		Key:       Key(domain),
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	return now, err
}

// Lookup serves domain from cache or calls fetch and stores the answer.
// Concurrent misses for the same domain share one fetch. Store failures are
// logged and never fail the lookup.
func (c *Cache) Lookup(ctx context.Context, domain string, fetch FetchFunc) (Result, error) {
	if res, ok, err := c.Get(ctx, domain); err != nil {
		c.logger.Warn("breach cache read failed", zap.String("domain", domain), zap.Error(err))
	} else if ok {
		return res, nil
	}

	v, err, _ := c.group.Do(Key(domain), func() (any, error) {
		payload, err := fetch(ctx)
		if err != nil {
			return Result{}, err
		}
		cachedAt, err := c.Set(ctx, domain, payload)
		if err != nil {
			c.logger.Warn("breach cache write failed", zap.String("domain", domain), zap.Error(err))
		}
		return Result{Payload: payload, CachedAt: cachedAt}, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}
