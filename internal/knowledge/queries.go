package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// DBTX abstracts the pgx connection surface used by Queries. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertChunkParams are the inputs for UpsertChunk.
type UpsertChunkParams struct {
	ID         string
	DocumentID string
	Ordinal    int32
	Text       string
	Embedding  *pgvector.Vector
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
}

// SearchChunksParams are the inputs for SearchChunks. A nil
// FilterMetadata disables the JSONB containment filter.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	Threshold      float64
	FilterMetadata []byte
	ResultLimit    int32
}

// ChunkRow is a raw search row before conversion to the business model.
type ChunkRow struct {
	ID         string
	DocumentID string
	Ordinal    int32
	Text       string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
	Similarity float64
}

// Queries is the handwritten pgx implementation of the database
// operations on knowledge chunks.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries instance backed by db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertChunkSQL = `
INSERT INTO knowledge_chunks (id, document_id, ordinal, text, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    document_id = EXCLUDED.document_id,
    ordinal     = EXCLUDED.ordinal,
    text        = EXCLUDED.text,
    embedding   = EXCLUDED.embedding,
    metadata    = EXCLUDED.metadata`

// UpsertChunk inserts or updates a chunk by ID. created_at is
// preserved on update.
func (q *Queries) UpsertChunk(ctx context.Context, arg UpsertChunkParams) error {
	_, err := q.db.Exec(ctx, upsertChunkSQL,
		arg.ID, arg.DocumentID, arg.Ordinal, arg.Text, arg.Embedding, arg.Metadata, arg.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

// <=> is pgvector cosine distance; similarity = 1 - distance.
const searchChunksSQL = `
SELECT id, document_id, ordinal, text, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM knowledge_chunks
WHERE 1 - (embedding <=> $1) > $2
ORDER BY embedding <=> $1
LIMIT $3`

const searchChunksFilteredSQL = `
SELECT id, document_id, ordinal, text, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM knowledge_chunks
WHERE 1 - (embedding <=> $1) > $2
  AND metadata @> $4
ORDER BY embedding <=> $1
LIMIT $3`

// SearchChunks performs vector similarity search with an optional
// JSONB metadata containment filter. Only rows strictly above the
// threshold match.
func (q *Queries) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]ChunkRow, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if arg.FilterMetadata != nil {
		rows, err = q.db.Query(ctx, searchChunksFilteredSQL,
			arg.QueryEmbedding, arg.Threshold, arg.ResultLimit, arg.FilterMetadata)
	} else {
		rows, err = q.db.Query(ctx, searchChunksSQL,
			arg.QueryEmbedding, arg.Threshold, arg.ResultLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Ordinal, &r.Text, &r.Metadata, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return out, nil
}

const countChunksSQL = `SELECT COUNT(*) FROM knowledge_chunks`

// CountChunks returns the total number of stored chunks.
func (q *Queries) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, countChunksSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

const deleteDocumentSQL = `DELETE FROM knowledge_chunks WHERE document_id = $1`

// DeleteDocument removes every chunk belonging to a document.
func (q *Queries) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteDocumentSQL, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return tag.RowsAffected(), nil
}
