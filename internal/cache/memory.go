package cache

import (
	"sync"
	"time"

	"nufang/pkg/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      any
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expiration)
}

// MemoryCache implements a simple in-memory TTL cache
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new memory cache and starts its sweeper
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	go cache.cleanupExpired(sweepInterval(ttl))

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &CacheEntry{
		Value:      value,
		Expiration: time.Now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired() {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*CacheEntry)
}

// Size returns the number of items in the cache, expired ones included
// until the next sweep
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Close stops the sweeper goroutine
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < 5*time.Minute {
		if ttl <= 0 {
			return time.Minute
		}
		return ttl
	}
	return 5 * time.Minute
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mutex.Lock()
			for key, entry := range c.items {
				if entry.IsExpired() {
					delete(c.items, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}

// DurationCache memoises probed track lengths keyed by file path
type DurationCache struct {
	*MemoryCache
}

// NewDurationCache creates a duration cache. Entries live long since a file's
// length only changes when the file is replaced.
func NewDurationCache() *DurationCache {
	return &DurationCache{
		MemoryCache: NewMemoryCache(time.Hour),
	}
}

// SetDuration caches the length in seconds of the file at path
func (dc *DurationCache) SetDuration(path string, seconds float64) {
	dc.Set("duration:"+path, seconds)
}

// GetDuration retrieves a cached length
func (dc *DurationCache) GetDuration(path string) (float64, bool) {
	value, exists := dc.Get("duration:" + path)
	if !exists {
		return 0, false
	}

	seconds, ok := value.(float64)
	return seconds, ok
}

// SetTrack caches the track described by the file at path
func (dc *DurationCache) SetTrack(path string, track models.Track) {
	dc.Set("track:"+path, track)
}

// GetTrack retrieves a cached track description
func (dc *DurationCache) GetTrack(path string) (models.Track, bool) {
	value, exists := dc.Get("track:" + path)
	if !exists {
		return models.Track{}, false
	}

	track, ok := value.(models.Track)
	return track, ok
}
