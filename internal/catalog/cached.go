package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/memewatch/internal/apperr"
	"github.com/starford/memewatch/internal/models"
	"github.com/starford/memewatch/internal/store"
)

// DefaultTTL is how long a fetched catalog is served before refetching.
const DefaultTTL = 5 * time.Minute

// Cached wraps a Provider with a TTL and persists every good snapshot to
// a store.CatalogCache. When the source fails it serves the last good
// snapshot, from memory or from the persisted cache.
type Cached struct {
	src    Provider
	cache  store.CatalogCache
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	entries   []models.CatalogEntry
	fetchedAt time.Time
	valid     bool
}

// CachedOption configures a Cached provider.
type CachedOption func(*Cached)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) CachedOption {
	return func(c *Cached) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCache persists snapshots to cache and reads it back as a fallback.
func WithCache(cache store.CatalogCache) CachedOption {
	return func(c *Cached) { c.cache = cache }
}

// WithCachedLogger sets the logger.
func WithCachedLogger(l *slog.Logger) CachedOption {
	return func(c *Cached) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNow injects the clock used for TTL checks.
func WithNow(now func() time.Time) CachedOption {
	return func(c *Cached) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCached wraps src.
func NewCached(src Provider, opts ...CachedOption) *Cached {
	c := &Cached{
		src:    src,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the cached snapshot while it is fresh, otherwise
// refetches. Fetch failures fall back to the last good snapshot and only
// surface as apperr.ErrUnavailable when none exists.
func (c *Cached) Catalog(ctx context.Context) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.now().Sub(c.fetchedAt) < c.ttl {
		return slices.Clone(c.entries), nil
	}

	entries, err := c.src.Catalog(ctx)
	if err == nil {
		c.entries = entries
		c.fetchedAt = c.now()
		c.valid = true
		c.persist(ctx, entries)
		return slices.Clone(entries), nil
	}

	c.logger.Warn("catalog: fetch failed, serving last good snapshot", slog.String("error", err.Error()))
	if c.entries != nil {
		return slices.Clone(c.entries), nil
	}
	if c.cache != nil {
		snap, cacheErr := c.cache.LoadCatalog(ctx)
		if cacheErr == nil {
			c.entries = snap.Entries
			return slices.Clone(snap.Entries), nil
		}
		if !errors.Is(cacheErr, apperr.ErrNotFound) {
			c.logger.Warn("catalog: cache read failed", slog.String("error", cacheErr.Error()))
		}
	}
	return nil, fmt.Errorf("catalog: %w: %w", apperr.ErrUnavailable, err)
}

// Invalidate forces the next Catalog call to refetch.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

func (c *Cached) persist(ctx context.Context, entries []models.CatalogEntry) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveCatalog(ctx, entries); err != nil {
		c.logger.Warn("catalog: cache write failed", slog.String("error", err.Error()))
	}
}
