// Package cache implements the bounded store of fetched raw media. It
// deduplicates concurrent fetches per key (single-flight) and bounds resource
// usage with a TTL plus LRU eviction at capacity.
package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/driftaudio/driftd/internal/metrics"
)

// FetchFunc downloads the raw media for a key and returns the artifact path.
type FetchFunc func(ctx context.Context) (string, error)

// Config bounds the cache.
type Config struct {
	MaxEntries int           // entry count never exceeds this
	TTL        time.Duration // entry validity measured from insertion
}

// DefaultConfig mirrors the service defaults: 50 entries, 24h TTL.
func DefaultConfig() Config {
	return Config{MaxEntries: 50, TTL: 24 * time.Hour}
}

type entry struct {
	key      string
	path     string
	created  time.Time
	lastUsed time.Time
}

// flight is one in-progress fetch shared by all concurrent callers of a key.
type flight struct {
	done chan struct{}
	path string
	err  error
}

// Cache owns its entries and the files they reference. Callers borrow
// artifact paths; they never delete them.
type Cache struct {
	cfg     Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
	flights map[string]*flight

	now func() time.Time // stubbed in tests
}

// New creates an empty cache.
func New(cfg Config, m *metrics.Metrics) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Cache{
		cfg:     cfg,
		metrics: m,
		entries: make(map[string]*entry),
		flights: make(map[string]*flight),
		now:     time.Now,
	}
}

// Acquire returns the artifact path for key, fetching it if no valid entry
// exists. The bool result reports whether the path was served from a valid
// cached entry.
//
// At most one fetch per key is in flight at any time: concurrent callers for
// the same key block until the first fetch completes and then share its
// result, success or failure. Waiters report hit=false; they did not hit the
// cache, they shared a fresh fetch.
func (c *Cache) Acquire(ctx context.Context, key string, fetch FetchFunc) (string, bool, error) {
	c.mu.Lock()

	if e, ok := c.entries[key]; ok {
		if c.validLocked(e) {
			e.lastUsed = c.now()
			path := e.path
			c.mu.Unlock()
			c.metrics.CacheHit()
			return path, true, nil
		}
		// Expired, or the backing file vanished: treat as a miss and
		// drop the record so the fetch below replaces it.
		delete(c.entries, key)
	}

	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.path, false, f.err
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.flights[key] = f
	c.mu.Unlock()

	c.metrics.CacheMiss()
	path, err := fetch(ctx)

	c.mu.Lock()
	delete(c.flights, key)
	if err == nil {
		c.evictLocked()
		now := c.now()
		c.entries[key] = &entry{key: key, path: path, created: now, lastUsed: now}
	}
	c.mu.Unlock()

	f.path, f.err = path, err
	close(f.done)

	if err != nil {
		return "", false, err
	}
	return path, false, nil
}

// validLocked reports whether an entry may be served: it must be younger than
// the TTL and its backing file must still exist on disk.
func (c *Cache) validLocked(e *entry) bool {
	if c.now().Sub(e.created) >= c.cfg.TTL {
		return false
	}
	if _, err := os.Stat(e.path); err != nil {
		return false
	}
	return true
}

// evictLocked makes room for one insertion. Entries already expired by TTL go
// first, oldest created first; if the cache is still at capacity it evicts by
// least recent use until under the limit.
func (c *Cache) evictLocked() {
	if len(c.entries) < c.cfg.MaxEntries {
		return
	}

	var expired []*entry
	for _, e := range c.entries {
		if c.now().Sub(e.created) >= c.cfg.TTL {
			expired = append(expired, e)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].created.Before(expired[j].created) })
	for _, e := range expired {
		if len(c.entries) < c.cfg.MaxEntries {
			break
		}
		c.removeLocked(e, "expired")
	}

	for len(c.entries) >= c.cfg.MaxEntries {
		var oldest *entry
		for _, e := range c.entries {
			if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
				oldest = e
			}
		}
		if oldest == nil {
			return
		}
		c.removeLocked(oldest, "lru")
	}
}

// removeLocked drops the in-memory record and deletes the backing file.
// File deletion failures are logged, never fatal.
func (c *Cache) removeLocked(e *entry, reason string) {
	delete(c.entries, e.key)
	c.metrics.CacheEviction()
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		log.Printf("cache: failed to remove evicted artifact %s (%s): %v", e.path, reason, err)
	}
}

// Snapshot is the read-only diagnostic view of the cache.
type Snapshot struct {
	Size       int             `json:"cache_size"`
	MaxSize    int             `json:"max_cache_size"`
	TTLSeconds int             `json:"cache_expiration_seconds"`
	Entries    []EntrySnapshot `json:"entries"`
}

// EntrySnapshot describes one cached artifact.
type EntrySnapshot struct {
	Key        string    `json:"key"`
	Path       string    `json:"file"`
	LastUsed   time.Time `json:"last_used"`
	AgeSeconds int       `json:"age_seconds"`
	FileExists bool      `json:"file_exists"`
}

// Snapshot returns the current cache contents for diagnostics. It does not
// refresh last-used timestamps.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Size:       len(c.entries),
		MaxSize:    c.cfg.MaxEntries,
		TTLSeconds: int(c.cfg.TTL.Seconds()),
		Entries:    make([]EntrySnapshot, 0, len(c.entries)),
	}
	now := c.now()
	for _, e := range c.entries {
		_, statErr := os.Stat(e.path)
		snap.Entries = append(snap.Entries, EntrySnapshot{
			Key:        e.key,
			Path:       e.path,
			LastUsed:   e.lastUsed,
			AgeSeconds: int(now.Sub(e.created).Seconds()),
			FileExists: statErr == nil,
		})
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Key < snap.Entries[j].Key })
	return snap
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// String implements fmt.Stringer for log lines.
func (c *Cache) String() string {
	return fmt.Sprintf("cache(%d/%d, ttl=%s)", c.Len(), c.cfg.MaxEntries, c.cfg.TTL)
}
