// Package provider dispatches generation requests through an ordered
// chain of model backends with a deterministic synthetic fallback.
//
// The chain is resolved once at startup from configuration: each
// configured backend joins in priority order (Gemini first, then
// OpenAI), and the synthetic fallback always terminates the chain.
// Dispatch therefore cannot fail outright — a request that exhausts
// every live backend still produces a schema-valid output, flagged
// for review.
package provider

import (
	"context"

	"github.com/formpilot/formpilot/internal/prompt"
)

// Provider registry names.
const (
	NamePrimary   = "gemini"
	NameSecondary = "openai"
	NameFallback  = "fallback"
)

// Generation is one successful model call: the raw text plus the
// token counts the backend reported for it. Token counts are zero
// when the backend reports no usage metadata.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Generator is one model backend in the dispatch chain.
type Generator interface {
	// Name identifies the backend in logs and response metadata.
	Name() string

	// Generate produces raw model text for a composed prompt.
	Generate(ctx context.Context, pr prompt.Prompt) (Generation, error)
}

// Registry holds the ordered dispatch chain. It is built once at
// startup and read-only afterwards, so no locking is needed.
type Registry struct {
	chain []Generator
}

// NewRegistry builds a registry from the given backends, keeping
// their order. Nil entries are skipped so callers can pass
// conditionally-constructed providers directly.
func NewRegistry(generators ...Generator) *Registry {
	r := &Registry{}
	for _, g := range generators {
		if g != nil {
			r.chain = append(r.chain, g)
		}
	}
	return r
}

// Chain returns the ordered backends.
func (r *Registry) Chain() []Generator { return r.chain }

// Names returns the backend names in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.chain))
	for i, g := range r.chain {
		names[i] = g.Name()
	}
	return names
}
