package convert

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// Cache memoizes successful conversions by content hash with TTL eviction.
// A nil *Cache is valid and never hits.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	size    int
	hits    uint64
	misses  uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// NewCache returns a cache holding at most size entries for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		size:    size,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

func cacheKey(mode Mode, source string) string {
	return ContentHashHex([]byte(string(mode) + "\x00" + source))
}

// Get returns a copy of the cached result for source.
func (c *Cache) Get(mode Mode, source string) (Result, bool) {
	if c == nil {
		return Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(mode, source)]
	if !ok || c.expired(e, time.Now()) {
		c.misses++
		return Result{}, false
	}
	c.hits++
	return e.result.clone(), true
}

// Put stores a copy of res, evicting the oldest entry when full.
func (c *Cache) Put(mode Mode, source string, res Result) {
	if c == nil || c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(mode, source)
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.size {
		c.evictOldest()
	}
	c.entries[key] = &cacheEntry{result: res.clone(), storedAt: time.Now()}
}

func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	delete(c.entries, oldestKey)
}

func (c *Cache) expired(e *cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) > c.ttl
}

// Cleanup removes expired entries.
func (c *Cache) Cleanup() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
		}
	}
}

// Stats returns the current usage counters.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Start launches the janitor that sweeps expired entries.
func (c *Cache) Start(ctx context.Context, every time.Duration) {
	if c == nil || every <= 0 {
		return
	}
	janitorCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-janitorCtx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// Stop stops the janitor and waits for it to exit.
func (c *Cache) Stop() {
	if c == nil {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
