package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/formpilot/formpilot/internal/clock"
	"github.com/formpilot/formpilot/internal/log"
)

// ErrNotFound indicates no record exists for the requested subject.
var ErrNotFound = errors.New("research record not found")

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Querier defines the database operations Store depends on.
type Querier interface {
	UpsertRecord(ctx context.Context, arg UpsertRecordParams) error
	GetRecord(ctx context.Context, subjectKey string) (RecordRow, error)
	SearchRecords(ctx context.Context, arg SearchRecordsParams) ([]RecordRow, error)
	DeleteRecord(ctx context.Context, subjectKey string) (int64, error)
}

// Store manages persisted research records.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder Embedder
	clock    clock.Clock
	window   time.Duration
	logger   log.Logger
}

// New creates a Store. window is the staleness window applied by
// IsStale.
func New(querier Querier, embedder Embedder, clk clock.Clock, window time.Duration, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		clock:    clk,
		window:   window,
		logger:   logger,
	}
}

// Get fetches the record for a subject, looking it up by normalized
// key. Returns ErrNotFound when absent; staleness is the caller's
// concern (see IsStale).
func (s *Store) Get(ctx context.Context, subject string) (Record, error) {
	key := NormalizeSubjectKey(subject)
	if key == "" {
		return Record{}, fmt.Errorf("subject %q normalizes to an empty key", subject)
	}

	row, err := s.queries.GetRecord(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("subject %q: %w", subject, ErrNotFound)
		}
		return Record{}, fmt.Errorf("fetching research record %q: %w", key, err)
	}
	return s.rowToRecord(row), nil
}

// IsStale reports whether rec is older than the store's staleness
// window.
func (s *Store) IsStale(rec Record) bool {
	return IsStale(rec, s.clock.Now(), s.window)
}

// Upsert embeds the record's summary and persists it, stamping
// UpdatedAt with the current time. The stored record for the subject
// key is replaced wholesale.
func (s *Store) Upsert(ctx context.Context, rec Record) (Record, error) {
	key := NormalizeSubjectKey(rec.Subject)
	if key == "" {
		return Record{}, fmt.Errorf("subject %q normalizes to an empty key", rec.Subject)
	}
	if rec.Summary == "" {
		return Record{}, fmt.Errorf("record for %q has an empty summary", rec.Subject)
	}

	vec, err := s.embedder.Embed(ctx, rec.Summary)
	if err != nil {
		return Record{}, fmt.Errorf("embedding summary for %q: %w", key, err)
	}
	if len(vec) == 0 {
		return Record{}, fmt.Errorf("empty embedding returned for %q", key)
	}
	embedding := pgvector.NewVector(vec)

	factsJSON, err := json.Marshal(rec.Facts)
	if err != nil {
		return Record{}, fmt.Errorf("marshaling facts for %q: %w", key, err)
	}

	now := s.clock.Now()
	err = s.queries.UpsertRecord(ctx, UpsertRecordParams{
		SubjectKey: key,
		Subject:    rec.Subject,
		Summary:    rec.Summary,
		Facts:      factsJSON,
		Sources:    rec.Sources,
		Embedding:  &embedding,
		UpdatedAt:  pgtype.Timestamptz{Time: now, Valid: true},
	})
	if err != nil {
		return Record{}, fmt.Errorf("upserting research record %q: %w", key, err)
	}

	rec.SubjectKey = key
	rec.UpdatedAt = now
	s.logger.Debug("upserted research record", "subject_key", key)
	return rec, nil
}

// SearchByEmbedding finds records whose summaries are semantically
// close to the query text. Zero matches is a valid outcome.
func (s *Store) SearchByEmbedding(ctx context.Context, query string, threshold float64, limit int) ([]SearchResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding research query: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding returned for research query")
	}
	queryEmbedding := pgvector.NewVector(vec)

	rows, err := s.queries.SearchRecords(ctx, SearchRecordsParams{
		QueryEmbedding: &queryEmbedding,
		Threshold:      threshold,
		ResultLimit:    int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("searching research records: %w", err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, SearchResult{
			Record:     s.rowToRecord(row),
			Similarity: row.Similarity,
		})
	}
	return results, nil
}

// Delete removes the record for a subject.
func (s *Store) Delete(ctx context.Context, subject string) error {
	key := NormalizeSubjectKey(subject)
	removed, err := s.queries.DeleteRecord(ctx, key)
	if err != nil {
		return fmt.Errorf("deleting research record %q: %w", key, err)
	}
	if removed == 0 {
		return fmt.Errorf("subject %q: %w", subject, ErrNotFound)
	}
	return nil
}

func (s *Store) rowToRecord(row RecordRow) Record {
	var facts map[string]any
	if len(row.Facts) > 0 {
		if err := json.Unmarshal(row.Facts, &facts); err != nil {
			s.logger.Warn("failed to parse research facts", "subject_key", row.SubjectKey, "error", err)
			facts = make(map[string]any)
		}
	}

	var updatedAt time.Time
	if row.UpdatedAt.Valid {
		updatedAt = row.UpdatedAt.Time
	}

	return Record{
		SubjectKey: row.SubjectKey,
		Subject:    row.Subject,
		Summary:    row.Summary,
		Facts:      facts,
		Sources:    row.Sources,
		UpdatedAt:  updatedAt,
	}
}
