package cache

import (
	"testing"
	"time"

	"github.com/formpilot/formpilot/internal/clock"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewEmbeddingCache(24*time.Hour, clk)

	if _, ok := c.Get("hello"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set("hello", []float32{0.1, 0.2, 0.3})

	vec, ok := c.Get("hello")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestEmbeddingCache_SameContentSameKey(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewEmbeddingCache(24*time.Hour, clk)

	c.Set("identical text", []float32{1})
	c.Set("identical text", []float32{2})

	if c.Len() != 1 {
		t.Errorf("identical text must share one entry, got %d", c.Len())
	}

	vec, _ := c.Get("identical text")
	if vec[0] != 2 {
		t.Error("last writer should win")
	}
}

func TestEmbeddingCache_Expiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewEmbeddingCache(24*time.Hour, clk)

	c.Set("text", []float32{1})
	clk.Advance(25 * time.Hour)

	if _, ok := c.Get("text"); ok {
		t.Error("entry should expire after TTL")
	}

	c.Set("again", []float32{1})
	clk.Advance(25 * time.Hour)
	if removed := c.Cleanup(); removed != 1 {
		t.Errorf("cleanup should remove 1 expired entry, got %d", removed)
	}
}

func TestEmbeddingCache_ValueIsolation(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewEmbeddingCache(24*time.Hour, clk)

	src := []float32{1, 2, 3}
	c.Set("text", src)
	src[0] = 99 // mutate the caller's slice after Set

	vec, _ := c.Get("text")
	if vec[0] != 1 {
		t.Error("cached value aliased the caller's slice on Set")
	}

	vec[1] = 99 // mutate the returned slice
	again, _ := c.Get("text")
	if again[1] != 2 {
		t.Error("cached value aliased the slice returned by Get")
	}
}

func TestContentHash_Distinct(t *testing.T) {
	if ContentHash("a") == ContentHash("b") {
		t.Error("distinct text should produce distinct hashes")
	}
	if ContentHash("a") != ContentHash("a") {
		t.Error("hash must be deterministic")
	}
}
