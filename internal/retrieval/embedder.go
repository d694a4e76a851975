package retrieval

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"

	"github.com/formpilot/formpilot/internal/cache"
)

// CachedEmbedder bridges a Genkit ai.Embedder to the single-text
// Embed signature the stores and engine consume, with a content-hash
// cache in front. Identical text never hits the embedding backend
// twice within the cache TTL.
type CachedEmbedder struct {
	embedder ai.Embedder
	cache    *cache.EmbeddingCache
}

// NewCachedEmbedder creates a CachedEmbedder. cache may be nil to
// disable caching.
func NewCachedEmbedder(embedder ai.Embedder, c *cache.EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{embedder: embedder, cache: c}
}

// Embed returns the vector for text, from cache when possible.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if vec, ok := e.cache.Get(text); ok {
			return vec, nil
		}
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(text, nil),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	vec := resp.Embeddings[0].Embedding
	if e.cache != nil {
		e.cache.Set(text, vec)
	}
	return vec, nil
}
