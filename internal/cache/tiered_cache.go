// Package cache implements the pipeline's two-tier TTL cache: an
// in-memory LRU-bounded tier backed by a durable DiskStore tier.
// Grounded on smart_cache.py's SmartCache: per-bucket TTLs, a single
// lock guarding the memory tier, and a background sweeper that evicts
// expired entries from both tiers on a timer.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/config"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

// TieredCache is the shared cache instance threaded through the stage
// runners and the DataProvider. One memory mutex guards the whole
// in-memory map; this reproduces the source's single RLock exactly and
// is cheap enough here since every critical section is O(1) map work.
type TieredCache struct {
	cfg    config.CacheConfig
	disk   DiskStore
	log    *zap.Logger
	sink   *telemetry.Sink
	nowFn  func() time.Time

	mu       sync.Mutex
	memory   map[model.CacheKey]model.CacheEntry
	lastUsed map[model.CacheKey]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a TieredCache and starts its background sweeper. Callers
// must call Close when done to stop the sweeper goroutine.
func New(cfg config.CacheConfig, disk DiskStore, log *zap.Logger, sink *telemetry.Sink) *TieredCache {
	c := &TieredCache{
		cfg:      cfg,
		disk:     disk,
		log:      log,
		sink:     sink,
		nowFn:    time.Now,
		memory:   make(map[model.CacheKey]model.CacheEntry),
		lastUsed: make(map[model.CacheKey]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get checks the memory tier, then the disk tier, promoting a disk hit
// back into memory. A returned ok=false means both tiers missed or the
// entry there had expired.
func (c *TieredCache) Get(ctx context.Context, key model.CacheKey) ([]byte, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}
	now := c.nowFn()
	ttl := c.cfg.TTLFor(string(key.Bucket))

	c.mu.Lock()
	if entry, ok := c.memory[key]; ok {
		if !entry.Expired(now) {
			entry.LastHit = now
			c.memory[key] = entry
			c.lastUsed[key] = now
			c.mu.Unlock()
			return entry.Payload, true
		}
		delete(c.memory, key)
		delete(c.lastUsed, key)
	}
	c.mu.Unlock()

	payload, storedAtS, ok, err := c.disk.Get(ctx, key)
	if err != nil {
		c.log.Warn("disk cache read failed", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	nowS := now.Unix()
	if nowS-storedAtS > int64(ttl.Seconds()) {
		return nil, false
	}

	// storedAtS only gives us a wall-clock mtime; anchor it to now's
	// monotonic reading by the already-computed wall-clock age so the
	// promoted entry's TTL still survives a clock jump from this point
	// forward.
	storedAt := now.Add(-time.Duration(nowS-storedAtS) * time.Second)
	c.mu.Lock()
	c.memory[key] = model.CacheEntry{Key: key, Payload: payload, StoredAt: storedAt, TTL: ttl, LastHit: now}
	c.lastUsed[key] = now
	c.evictLRULocked()
	c.mu.Unlock()
	return payload, true
}

// Set writes payload to both tiers.
func (c *TieredCache) Set(ctx context.Context, key model.CacheKey, payload []byte) error {
	if !c.cfg.Enabled {
		return nil
	}
	now := c.nowFn()
	ttl := c.cfg.TTLFor(string(key.Bucket))

	c.mu.Lock()
	c.memory[key] = model.CacheEntry{Key: key, Payload: payload, StoredAt: now, TTL: ttl, LastHit: now}
	c.lastUsed[key] = now
	c.evictLRULocked()
	c.mu.Unlock()

	return c.disk.Set(ctx, key, payload, now.Unix())
}

// evictLRULocked removes the oldest-accessed entries once the memory
// tier exceeds its configured size, mirroring smart_cache.py's
// _evict_lru: it removes (over - max + 100) entries in one pass rather
// than evicting one at a time, to avoid evicting on every single
// insert once the cache is full.
func (c *TieredCache) evictLRULocked() {
	if len(c.memory) <= c.cfg.MaxMemoryEntries {
		return
	}
	type keyAge struct {
		key model.CacheKey
		age time.Time
	}
	ordered := make([]keyAge, 0, len(c.lastUsed))
	for k, t := range c.lastUsed {
		ordered = append(ordered, keyAge{k, t})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].age.Before(ordered[j].age) })

	numToRemove := len(c.memory) - c.cfg.MaxMemoryEntries + 100
	if numToRemove > len(ordered) {
		numToRemove = len(ordered)
	}
	for i := 0; i < numToRemove; i++ {
		delete(c.memory, ordered[i].key)
		delete(c.lastUsed, ordered[i].key)
	}
	c.log.Debug("evicted memory cache entries", zap.Int("count", numToRemove))
}

// ClearExpired removes expired entries from both tiers immediately,
// independent of the sweeper's schedule. Exposed for the CLI's
// "cache clear-expired" command.
func (c *TieredCache) ClearExpired(ctx context.Context) (int, error) {
	now := c.nowFn()
	removedMem := 0
	// One critical section per bucket, so a sweep never holds the lock
	// across all three buckets at once.
	for _, bucket := range []model.Bucket{model.BucketData, model.BucketChart, model.BucketAnalysis} {
		c.mu.Lock()
		for k, entry := range c.memory {
			if k.Bucket == bucket && entry.Expired(now) {
				delete(c.memory, k)
				delete(c.lastUsed, k)
				removedMem++
			}
		}
		c.mu.Unlock()
	}

	removedDisk, err := c.disk.ClearExpired(ctx, func(b model.Bucket) time.Duration {
		return c.cfg.TTLFor(string(b))
	})
	return removedMem + removedDisk, err
}

// ClearAll empties both tiers unconditionally. Exposed for the CLI's
// "cache clear-all" command.
func (c *TieredCache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	c.memory = make(map[model.CacheKey]model.CacheEntry)
	c.lastUsed = make(map[model.CacheKey]time.Time)
	c.mu.Unlock()
	return c.disk.ClearAll(ctx)
}

// Stats reports the current size of the memory tier, for the CLI's
// "cache stats" command.
func (c *TieredCache) Stats() (memoryEntries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.memory)
}

// sweepLoop runs the background cleanup at min(configured cleanup
// interval, shortest bucket TTL): a cleanup interval longer than the shortest
// TTL would let that bucket's disk files sit expired-but-present for
// up to an extra cleanup cycle, which defeats the point of a short TTL
// in the first place.
func (c *TieredCache) sweepLoop() {
	defer close(c.doneCh)
	interval := c.sweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx := context.Background()
			removed, err := c.ClearExpired(ctx)
			if err != nil {
				c.log.Warn("cache sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				c.log.Debug("cache sweep removed expired entries", zap.Int("count", removed))
			}
		}
	}
}

func (c *TieredCache) sweepInterval() time.Duration {
	shortest := c.cfg.DataTTL()
	for _, d := range []time.Duration{c.cfg.ChartTTL(), c.cfg.AnalysisTTL()} {
		if d < shortest {
			shortest = d
		}
	}
	interval := c.cfg.CleanupInterval()
	if shortest < interval {
		return shortest
	}
	return interval
}

// Close stops the background sweeper and waits for it to exit.
func (c *TieredCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}
