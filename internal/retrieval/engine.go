// Package retrieval merges context from the knowledge store and the
// research store into a single ranked snippet list for prompt
// composition.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/formpilot/formpilot/internal/knowledge"
	"github.com/formpilot/formpilot/internal/log"
	"github.com/formpilot/formpilot/internal/research"
)

// Snippet source type constants.
const (
	// SourceKnowledge marks snippets from the knowledge chunk store.
	SourceKnowledge = "knowledge"

	// SourceResearch marks snippets from persisted research summaries.
	SourceResearch = "research"
)

// Snippet is one unit of retrieved context, tagged with where it came
// from.
type Snippet struct {
	Text       string
	Source     string // SourceKnowledge or SourceResearch
	Ref        string // Chunk ID or research subject key
	Similarity float64
	CreatedAt  time.Time
}

// KnowledgeSearcher is the slice of knowledge.Store the engine uses.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// ResearchSearcher is the slice of research.Store the engine uses.
type ResearchSearcher interface {
	SearchByEmbedding(ctx context.Context, query string, threshold float64, limit int) ([]research.SearchResult, error)
}

// Config carries the retrieval tuning knobs.
type Config struct {
	MatchCount          int
	SimilarityThreshold float64
	ResearchMatchCount  int
	ResearchThreshold   float64
}

// Engine retrieves and ranks context snippets.
// Safe for concurrent use by multiple goroutines.
type Engine struct {
	knowledge KnowledgeSearcher
	research  ResearchSearcher
	cfg       Config
	logger    log.Logger
}

// NewEngine creates an Engine. research may be nil when the research
// store is unavailable.
func NewEngine(ks KnowledgeSearcher, rs ResearchSearcher, cfg Config, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		knowledge: ks,
		research:  rs,
		cfg:       cfg,
		logger:    logger,
	}
}

// Retrieve searches both stores and merges the hits into one list
// ordered by similarity descending, with newer entries winning exact
// ties. taskKind, when non-empty, restricts knowledge chunks to those
// tagged for that kind.
//
// One source failing degrades to the other with a warning; the result
// is an error only when every source fails. Zero snippets is a valid
// outcome.
func (e *Engine) Retrieve(ctx context.Context, query, taskKind string) ([]Snippet, error) {
	var snippets []Snippet
	var failures []error

	opts := []knowledge.SearchOption{
		knowledge.WithTopK(e.cfg.MatchCount),
		knowledge.WithThreshold(e.cfg.SimilarityThreshold),
	}
	if taskKind != "" {
		opts = append(opts, knowledge.WithFilter("task_kind", taskKind))
	}

	kResults, err := e.knowledge.Search(ctx, query, opts...)
	if err != nil {
		e.logger.Warn("knowledge search failed, degrading", "error", err)
		failures = append(failures, fmt.Errorf("knowledge: %w", err))
	}
	for _, r := range kResults {
		snippets = append(snippets, Snippet{
			Text:       r.Chunk.Text,
			Source:     SourceKnowledge,
			Ref:        r.Chunk.ID,
			Similarity: r.Similarity,
			CreatedAt:  r.Chunk.CreatedAt,
		})
	}

	if e.research != nil {
		rResults, err := e.research.SearchByEmbedding(ctx, query, e.cfg.ResearchThreshold, e.cfg.ResearchMatchCount)
		if err != nil {
			e.logger.Warn("research search failed, degrading", "error", err)
			failures = append(failures, fmt.Errorf("research: %w", err))
		}
		for _, r := range rResults {
			snippets = append(snippets, Snippet{
				Text:       r.Record.Summary,
				Source:     SourceResearch,
				Ref:        r.Record.SubjectKey,
				Similarity: r.Similarity,
				CreatedAt:  r.Record.UpdatedAt,
			})
		}
	}

	if len(snippets) == 0 && len(failures) > 0 {
		return nil, fmt.Errorf("all retrieval sources failed: %v", failures)
	}

	sortSnippets(snippets)
	return snippets, nil
}

// sortSnippets orders by similarity descending; exact similarity ties
// break toward the more recently created snippet so fresh context wins.
func sortSnippets(s []Snippet) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Similarity != s[j].Similarity {
			return s[i].Similarity > s[j].Similarity
		}
		return s[i].CreatedAt.After(s[j].CreatedAt)
	})
}
