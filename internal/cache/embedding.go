package cache

import (
	"sync"
	"time"

	"github.com/formpilot/formpilot/internal/clock"
)

// EmbeddingCache avoids recomputing embeddings for identical text. Keys
// are content hashes of the embedded text, so the key is a pure function
// of the content; the TTL is long (hours) because embeddings for a fixed
// model never change for the same input.
//
// Vectors are copied on Set and Get so no caller can mutate a cached
// value in place.
type EmbeddingCache struct {
	mu  sync.Mutex
	ttl time.Duration
	clk clock.Clock

	entries map[string]*entry[[]float32]

	stats counters
}

// NewEmbeddingCache creates an embedding cache whose entries expire ttl
// after being stored.
func NewEmbeddingCache(ttl time.Duration, clk clock.Clock) *EmbeddingCache {
	return &EmbeddingCache{
		ttl:     ttl,
		clk:     clk,
		entries: make(map[string]*entry[[]float32]),
	}
}

// Get returns the cached embedding for text, if present and unexpired.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := ContentHash(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.misses.Add(1)
		return nil, false
	}

	now := c.clk.Now()
	if now.Sub(e.createdAt) >= c.ttl {
		delete(c.entries, key)
		c.stats.misses.Add(1)
		return nil, false
	}

	e.lastAccessedAt = now
	e.hitCount++
	c.stats.hits.Add(1)

	out := make([]float32, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set stores the embedding for text. Last writer wins on racing keys.
func (c *EmbeddingCache) Set(text string, embedding []float32) {
	key := ContentHash(text)
	stored := make([]float32, len(embedding))
	copy(stored, embedding)

	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[[]float32]{
		key:            key,
		value:          stored,
		createdAt:      now,
		lastAccessedAt: now,
	}
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *EmbeddingCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.createdAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the hit/miss counters.
func (c *EmbeddingCache) Stats() Stats {
	return c.stats.snapshot()
}
