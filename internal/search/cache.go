package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is used when no TTL is configured.
const DefaultCacheTTL = time.Hour

// cacheEntry pairs a cached page with its store time for TTL checks.
type cacheEntry struct {
	result   *Result
	storedAt time.Time
}

// ResultCache is a bounded LRU of served result pages. Entries expire
// after a TTL, and keys carry the index version stamp so pages cached
// before a re-index are never served afterwards. Concurrent fills for
// the same key are coalesced: one caller fetches, the rest await.
type ResultCache struct {
	lru   *lru.Cache[string, cacheEntry]
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time
}

// NewResultCache creates a cache with the given capacity and TTL.
func NewResultCache(capacity int, ttl time.Duration) (*ResultCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	inner, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	return &ResultCache{
		lru: inner,
		ttl: ttl,
		now: time.Now,
	}, nil
}

// CacheKey derives the cache key for a query. The index version stamp
// is part of the key, so a re-index invalidates every prior entry
// without an explicit purge.
func CacheKey(query string, opts Options, indexVersion string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	raw := strings.Join([]string{
		normalized,
		fmt.Sprintf("%d", opts.Page),
		fmt.Sprintf("%d", opts.PerPage),
		fmt.Sprintf("%t|%t|%t", opts.Flags.CaseSensitive, opts.Flags.ExactOnly, opts.Flags.ShowContext),
		fmt.Sprintf("%d|%d", opts.MaxResultsPerFile, opts.SnippetRadius),
		indexVersion,
	}, "\x1f")

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached page for key, or (nil, false) on miss or
// expiry. A miss is normal control flow, never an error.
func (c *ResultCache) Get(key string) (*Result, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.result, true
}

// Put stores a page under key.
func (c *ResultCache) Put(key string, result *Result) {
	c.lru.Add(key, cacheEntry{result: result, storedAt: c.now()})
}

// GetOrFill returns the cached page for key, or invokes fill exactly
// once per key across concurrent callers and caches its result. The
// bool reports whether the page came from the cache.
func (c *ResultCache) GetOrFill(key string, fill func() (*Result, error)) (*Result, bool, error) {
	if result, ok := c.Get(key); ok {
		return result, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: a concurrent caller may have filled while this one
		// waited on the flight group.
		if result, ok := c.Get(key); ok {
			return result, nil
		}
		result, err := fill()
		if err != nil {
			return nil, err
		}
		// A canceled fill is a truncated page, not the query's answer.
		if !result.Canceled {
			c.Put(key, result)
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Result), false, nil
}

// Purge drops every cached entry.
func (c *ResultCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}
