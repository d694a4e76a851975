package research

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// DBTX abstracts the pgx connection surface used by Queries.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertRecordParams are the inputs for UpsertRecord.
type UpsertRecordParams struct {
	SubjectKey string
	Subject    string
	Summary    string
	Facts      []byte
	Sources    []string
	Embedding  *pgvector.Vector
	UpdatedAt  pgtype.Timestamptz
}

// RecordRow is a raw database row before conversion to the business
// model.
type RecordRow struct {
	SubjectKey string
	Subject    string
	Summary    string
	Facts      []byte
	Sources    []string
	UpdatedAt  pgtype.Timestamptz
	Similarity float64 // Populated by SearchRecords only
}

// SearchRecordsParams are the inputs for SearchRecords.
type SearchRecordsParams struct {
	QueryEmbedding *pgvector.Vector
	Threshold      float64
	ResultLimit    int32
}

// Queries is the handwritten pgx implementation of research record
// persistence.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries instance backed by db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertRecordSQL = `
INSERT INTO research_records (subject_key, subject, summary, facts, sources, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (subject_key) DO UPDATE SET
    subject    = EXCLUDED.subject,
    summary    = EXCLUDED.summary,
    facts      = EXCLUDED.facts,
    sources    = EXCLUDED.sources,
    embedding  = EXCLUDED.embedding,
    updated_at = EXCLUDED.updated_at`

// UpsertRecord inserts or replaces the record for a subject key.
// Re-running research for the same subject overwrites in place, so
// repeated refreshes are idempotent.
func (q *Queries) UpsertRecord(ctx context.Context, arg UpsertRecordParams) error {
	_, err := q.db.Exec(ctx, upsertRecordSQL,
		arg.SubjectKey, arg.Subject, arg.Summary, arg.Facts, arg.Sources, arg.Embedding, arg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert research record: %w", err)
	}
	return nil
}

const getRecordSQL = `
SELECT subject_key, subject, summary, facts, sources, updated_at
FROM research_records
WHERE subject_key = $1`

// GetRecord fetches one record by subject key. Returns pgx.ErrNoRows
// when absent; Store maps that to ErrNotFound.
func (q *Queries) GetRecord(ctx context.Context, subjectKey string) (RecordRow, error) {
	var r RecordRow
	err := q.db.QueryRow(ctx, getRecordSQL, subjectKey).
		Scan(&r.SubjectKey, &r.Subject, &r.Summary, &r.Facts, &r.Sources, &r.UpdatedAt)
	if err != nil {
		return RecordRow{}, err
	}
	return r, nil
}

const searchRecordsSQL = `
SELECT subject_key, subject, summary, facts, sources, updated_at,
       1 - (embedding <=> $1) AS similarity
FROM research_records
WHERE 1 - (embedding <=> $1) > $2
ORDER BY embedding <=> $1
LIMIT $3`

// SearchRecords performs vector similarity search over record
// summaries. Only rows strictly above the threshold match.
func (q *Queries) SearchRecords(ctx context.Context, arg SearchRecordsParams) ([]RecordRow, error) {
	rows, err := q.db.Query(ctx, searchRecordsSQL,
		arg.QueryEmbedding, arg.Threshold, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("search research records: %w", err)
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(&r.SubjectKey, &r.Subject, &r.Summary, &r.Facts, &r.Sources, &r.UpdatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan research row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate research rows: %w", err)
	}
	return out, nil
}

const deleteRecordSQL = `DELETE FROM research_records WHERE subject_key = $1`

// DeleteRecord removes the record for a subject key.
func (q *Queries) DeleteRecord(ctx context.Context, subjectKey string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteRecordSQL, subjectKey)
	if err != nil {
		return 0, fmt.Errorf("delete research record: %w", err)
	}
	return tag.RowsAffected(), nil
}
