package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/formpilot/formpilot/internal/clock"
)

// entry is one cached value with its bookkeeping fields. Owned
// exclusively by the cache that created it.
type entry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	lastAccessedAt time.Time
	hitCount       int
}

// ResponseCache is a capacity-bounded TTL cache with LRU eviction on
// overflow. Expired entries are dropped lazily on Get and in bulk by
// Cleanup; when the cache is full, the least recently used live entry is
// evicted to make room.
type ResponseCache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clk      clock.Clock

	order   *list.List // front = most recently used
	entries map[string]*list.Element

	stats counters
}

// NewResponseCache creates a response cache holding at most capacity
// entries, each valid for ttl after creation.
func NewResponseCache[V any](capacity int, ttl time.Duration, clk clock.Clock) *ResponseCache[V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ResponseCache[V]{
		capacity: capacity,
		ttl:      ttl,
		clk:      clk,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *ResponseCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.stats.misses.Add(1)
		return zero, false
	}

	e := el.Value.(*entry[V])
	now := c.clk.Now()
	if now.Sub(e.createdAt) >= c.ttl {
		c.removeLocked(el)
		c.stats.misses.Add(1)
		return zero, false
	}

	e.lastAccessedAt = now
	e.hitCount++
	c.order.MoveToFront(el)
	c.stats.hits.Add(1)
	return e.value, true
}

// Set stores value under key, replacing any existing entry. Concurrent
// writers for the same key resolve last-writer-wins.
func (c *ResponseCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.createdAt = now
		e.lastAccessedAt = now
		c.order.MoveToFront(el)
		return
	}

	// Expire first, then fall back to LRU eviction on overflow.
	if len(c.entries) >= c.capacity {
		c.sweepLocked(now)
	}
	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.stats.evictions.Add(1)
	}

	el := c.order.PushFront(&entry[V]{
		key:            key,
		value:          value,
		createdAt:      now,
		lastAccessedAt: now,
	})
	c.entries[key] = el
}

// Cleanup sweeps all expired entries and returns how many were removed.
// Intended to be called periodically; Get also expires lazily.
func (c *ResponseCache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.clk.Now())
}

// Len returns the number of live entries, expired or not.
func (c *ResponseCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the hit/miss/eviction counters.
func (c *ResponseCache[V]) Stats() Stats {
	return c.stats.snapshot()
}

func (c *ResponseCache[V]) sweepLocked(now time.Time) int {
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.Sub(el.Value.(*entry[V]).createdAt) >= c.ttl {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *ResponseCache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	c.order.Remove(el)
	delete(c.entries, e.key)
}
