package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/formpilot/formpilot/internal/clock"
	"github.com/formpilot/formpilot/internal/log"
)

// Embedder produces a vector for a piece of text. The production
// implementation wraps the configured genkit embedder behind the
// embedding cache; tests substitute a deterministic fake.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Querier defines the database operations Store depends on.
// Interfaces are defined by the consumer: Store depends on this
// abstraction rather than on *Queries, so tests mock at the query
// level instead of faking pgx rows.
type Querier interface {
	UpsertChunk(ctx context.Context, arg UpsertChunkParams) error
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error)
	CountChunks(ctx context.Context) (int64, error)
	DeleteDocument(ctx context.Context, documentID string) (int64, error)
}

// Store manages knowledge chunks with vector search.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder Embedder
	clock    clock.Clock
	logger   log.Logger
}

// New creates a Store. A nil clk falls back to the system clock.
func New(querier Querier, embedder Embedder, clk clock.Clock, logger log.Logger) *Store {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		clock:    clk,
		logger:   logger,
	}
}

// Add embeds and upserts a chunk. An existing chunk with the same ID
// is overwritten in place.
func (s *Store) Add(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk ID must not be empty")
	}
	if chunk.Text == "" {
		return fmt.Errorf("chunk %q: text must not be empty", chunk.ID)
	}

	vec, err := s.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("embedding chunk %q: %w", chunk.ID, err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding returned for chunk %q", chunk.ID)
	}
	embedding := pgvector.NewVector(vec)

	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for chunk %q: %w", chunk.ID, err)
	}

	// created_at is NOT NULL; an unset time is stamped here rather
	// than sent as an explicit NULL.
	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	err = s.queries.UpsertChunk(ctx, UpsertChunkParams{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		Ordinal:    int32(chunk.Ordinal),
		Text:       chunk.Text,
		Embedding:  &embedding,
		Metadata:   metadataJSON,
		CreatedAt:  pgtype.Timestamptz{Time: createdAt, Valid: true},
	})
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunk.ID, err)
	}

	s.logger.Debug("added knowledge chunk",
		"id", chunk.ID, "document_id", chunk.DocumentID, "text_length", len(chunk.Text))
	return nil
}

// Search performs semantic search over stored chunks, ordered by
// similarity descending. Zero matches is a valid outcome, not an
// error: callers receive an empty slice and proceed without context.
//
// Example:
//
//	results, err := store.Search(ctx, "expense report approval flow",
//	    knowledge.WithTopK(5),
//	    knowledge.WithFilter("task_kind", "sop-generator"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	// Bound the whole operation so a slow vector scan cannot block the
	// request pipeline.
	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec, err := s.embedder.Embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}
	queryEmbedding := pgvector.NewVector(vec)

	// filterJSON is always produced by json.Marshal and applied with
	// the parameterized JSONB @> operator, never interpolated.
	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	rows, err := s.queries.SearchChunks(queryCtx, SearchChunksParams{
		QueryEmbedding: &queryEmbedding,
		Threshold:      cfg.threshold,
		FilterMetadata: filterJSON,
		ResultLimit:    int32(cfg.topK),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	return s.rowsToResults(rows), nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.queries.CountChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// DeleteDocument removes all chunks of a document and returns how many
// were removed.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	removed, err := s.queries.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting document %q: %w", documentID, err)
	}
	s.logger.Debug("deleted document chunks", "document_id", documentID, "removed", removed)
	return removed, nil
}

func (s *Store) rowsToResults(rows []ChunkRow) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
				s.logger.Warn("failed to parse chunk metadata", "chunk_id", row.ID, "error", err)
				metadata = make(map[string]string)
			}
		}

		var createdAt time.Time
		if row.CreatedAt.Valid {
			createdAt = row.CreatedAt.Time
		}

		results = append(results, Result{
			Chunk: Chunk{
				ID:         row.ID,
				DocumentID: row.DocumentID,
				Ordinal:    int(row.Ordinal),
				Text:       row.Text,
				Metadata:   metadata,
				CreatedAt:  createdAt,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
