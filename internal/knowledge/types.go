package knowledge

import "time"

// Chunk is one embedded unit of reference text. Documents are split
// into chunks before insertion; Ordinal preserves their order within
// the parent document.
type Chunk struct {
	ID         string            // Unique identifier
	DocumentID string            // Parent document identifier
	Ordinal    int               // Position within the parent document
	Text       string            // Chunk text content
	Metadata   map[string]string // Optional metadata (task_kind, source, ...)
	CreatedAt  time.Time         // Creation timestamp
}

// Result is a single search hit with its similarity score.
type Result struct {
	Chunk      Chunk
	Similarity float64 // Cosine similarity, 0-1
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK      int
	threshold float64
	filter    map[string]string
	timeout   time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithThreshold sets the minimum similarity for a chunk to be
// returned. Default is 0.7.
func WithThreshold(t float64) SearchOption {
	return func(c *searchConfig) {
		c.threshold = t
	}
}

// WithFilter restricts search results by metadata. Multiple calls add
// additional filters (AND logic).
// Example: WithFilter("task_kind", "sop-generator")
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:      5,
		threshold: 0.7,
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
