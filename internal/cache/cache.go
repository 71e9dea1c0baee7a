// Package cache implements the bounded, time-expiring search result cache.
//
// The cache maps a query signature to a previously computed ranked result
// list. Entries expire lazily on read; the optional background sweep is
// advisory and correctness never depends on it. Keys are spread over shards
// so that lookups for different queries do not serialize on one lock.
package cache

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/halvard/bragi/internal/models"
)

var (
	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bragi_cache_hits_total",
		Help: "Total lookups answered from the result cache.",
	})
	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bragi_cache_misses_total",
		Help: "Total lookups that missed the result cache or hit an expired entry.",
	})
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bragi_cache_evictions_total",
		Help: "Total entries evicted to stay within capacity.",
	})
	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bragi_cache_invalidations_total",
		Help: "Total entries removed by write-driven invalidation.",
	})
)

// Clock returns the current time. Injectable for deterministic TTL tests.
type Clock func() time.Time

// Config bounds the cache.
type Config struct {
	MaxEntries int
	TTL        time.Duration
}

// DefaultConfig returns the default cache bounds.
func DefaultConfig() Config {
	return Config{MaxEntries: 256, TTL: 5 * time.Minute}
}

type entry struct {
	results    []models.ScoredResult
	insertedAt time.Time
	lastAccess time.Time
	expiresAt  time.Time
	generation uint64
}

// shard owns a slice of the key space under its own lock. The embedded LRU
// keeps recency order; eviction decisions stay with the shard because the
// policy (least-recently-used unexpired first) is expiry-aware.
type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *entry]
	cap int
}

// Cache is the sharded result cache.
type Cache struct {
	shards []*shard
	ttl    time.Duration
	clock  Clock
	gen    atomic.Uint64
	logger *slog.Logger
}

const defaultShardCount = 16

// New creates a Cache. A nil clock uses time.Now.
func New(cfg Config, clock Clock, logger *slog.Logger) *Cache {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := defaultShardCount
	if cfg.MaxEntries < n {
		n = cfg.MaxEntries
	}
	shards := make([]*shard, n)
	base, extra := cfg.MaxEntries/n, cfg.MaxEntries%n
	for i := range shards {
		c := base
		if i < extra {
			c++
		}
		// Capacity headroom: the LRU must never auto-evict; the shard
		// evicts explicitly before inserting.
		l, _ := simplelru.NewLRU[string, *entry](c+1, nil)
		shards[i] = &shard{lru: l, cap: c}
	}
	return &Cache{shards: shards, ttl: cfg.TTL, clock: clock, logger: logger}
}

func (c *Cache) shardFor(sig string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sig))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Generation returns the invalidation generation. Callers snapshot it before
// computing results and pass it to Put so results computed before an
// intervening invalidation are never committed after it.
func (c *Cache) Generation() uint64 {
	return c.gen.Load()
}

// Get returns the cached result list for sig if present and unexpired.
// A hit refreshes the entry's recency for eviction ordering. An entry whose
// age exceeds the TTL is removed and reported as a miss, regardless of how
// recently it was accessed.
//
// The returned slice is shared and must be treated as read-only.
func (c *Cache) Get(sig string) ([]models.ScoredResult, bool) {
	s := c.shardFor(sig)
	now := c.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Peek(sig)
	if !ok {
		missesTotal.Inc()
		return nil, false
	}
	if now.After(e.expiresAt) {
		s.lru.Remove(sig)
		missesTotal.Inc()
		return nil, false
	}
	s.lru.Get(sig) // recency bump
	e.lastAccess = now
	hitsTotal.Inc()
	return e.results, true
}

// Put inserts or replaces the entry for sig. It reports false, committing
// nothing, when gen is older than the current generation (an invalidation
// ran while the results were being computed).
//
// Eviction is synchronous with insertion: at capacity the shard drops its
// least-recently-used unexpired entry, or when every entry has expired, the
// one nearest to its expiry.
func (c *Cache) Put(sig string, results []models.ScoredResult, gen uint64) bool {
	if gen != c.gen.Load() {
		return false
	}
	s := c.shardFor(sig)
	now := c.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the shard lock; Invalidate takes shard locks after
	// bumping the generation, so this closes the race window.
	if gen != c.gen.Load() {
		return false
	}

	if !s.lru.Contains(sig) && s.lru.Len() >= s.cap {
		s.evictOne(now)
	}
	s.lru.Add(sig, &entry{
		results:    results,
		insertedAt: now,
		lastAccess: now,
		expiresAt:  now.Add(c.ttl),
		generation: gen,
	})
	return true
}

// evictOne frees one slot. Caller holds the shard lock.
func (s *shard) evictOne(now time.Time) {
	var fallback string
	var fallbackExpiry time.Time
	// Keys are ordered least-recently-used first.
	for _, key := range s.lru.Keys() {
		e, ok := s.lru.Peek(key)
		if !ok {
			continue
		}
		if !now.After(e.expiresAt) {
			s.lru.Remove(key)
			evictionsTotal.Inc()
			return
		}
		if fallback == "" || e.expiresAt.Before(fallbackExpiry) {
			fallback = key
			fallbackExpiry = e.expiresAt
		}
	}
	if fallback != "" {
		s.lru.Remove(fallback)
		evictionsTotal.Inc()
	}
}

// Invalidate removes every entry whose cached result set references a record
// id accepted by match. It is used after any mutation, archive, or delete.
// If match panics the cache degrades to a full clear rather than leaving
// possibly-stale entries behind.
func (c *Cache) Invalidate(match func(id int64) bool) {
	// Bump first so in-flight Puts computed against the old state are
	// rejected.
	c.gen.Add(1)

	for _, s := range c.shards {
		if !s.invalidate(match) {
			c.logger.Warn("cache: invalidation predicate failed, clearing cache")
			c.Clear()
			return
		}
	}
}

// invalidate removes matching entries from one shard. It reports false when
// the predicate panicked; the shard is left consistent either way.
func (s *shard) invalidate(match func(id int64) bool) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	for _, key := range s.lru.Keys() {
		e, found := s.lru.Peek(key)
		if !found {
			continue
		}
		for i := range e.results {
			if match(e.results[i].Record.ID) {
				s.lru.Remove(key)
				invalidationsTotal.Inc()
				break
			}
		}
	}
	return true
}

// InvalidateIDs removes every entry referencing any of the given record ids.
func (c *Cache) InvalidateIDs(ids []int64) {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	c.Invalidate(func(id int64) bool {
		_, ok := set[id]
		return ok
	})
}

// Clear drops every entry. It is the conservative fallback when the affected
// record set cannot be cheaply determined.
func (c *Cache) Clear() {
	c.gen.Add(1)
	for _, s := range c.shards {
		s.mu.Lock()
		invalidationsTotal.Add(float64(s.lru.Len()))
		s.lru.Purge()
		s.mu.Unlock()
	}
}

// Len returns the number of resident entries, expired or not.
func (c *Cache) Len() int {
	var n int
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

// Sweep removes expired entries and returns how many were dropped. Lazy
// expiry-on-read remains the source of truth; sweeping only reclaims memory
// earlier.
func (c *Cache) Sweep() int {
	now := c.clock()
	var dropped int
	for _, s := range c.shards {
		s.mu.Lock()
		for _, key := range s.lru.Keys() {
			if e, ok := s.lru.Peek(key); ok && now.After(e.expiresAt) {
				s.lru.Remove(key)
				dropped++
			}
		}
		s.mu.Unlock()
	}
	return dropped
}

// StartSweep runs periodic sweeps until ctx is cancelled.
func (c *Cache) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("cache: sweep removed expired entries", slog.Int("count", n))
			}
		}
	}
}
