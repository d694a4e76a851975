package research_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/formpilot/formpilot/internal/research"
	"github.com/formpilot/formpilot/internal/testutil"
)

// =============================================================================
// Queries integration tests (real PostgreSQL via testcontainers)
// =============================================================================

func vec(leading ...float32) *pgvector.Vector {
	v := pgvector.NewVector(testutil.Vector768(leading...))
	return &v
}

func ts(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func TestQueries_UpsertAndGet(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	q := research.NewQueries(testDB.Pool)
	updated := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := q.UpsertRecord(ctx, research.UpsertRecordParams{
		SubjectKey: "acme corp",
		Subject:    "Acme Corp",
		Summary:    "Acme Corp manufactures industrial anvils.",
		Facts:      []byte(`{"overview":"anvil maker","industry":"manufacturing"}`),
		Sources:    []string{"https://acme.example/about"},
		Embedding:  vec(1, 0),
		UpdatedAt:  ts(updated),
	})
	if err != nil {
		t.Fatalf("UpsertRecord() error = %v", err)
	}

	row, err := q.GetRecord(ctx, "acme corp")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if row.Subject != "Acme Corp" {
		t.Errorf("Subject = %q, want Acme Corp", row.Subject)
	}
	if len(row.Sources) != 1 || row.Sources[0] != "https://acme.example/about" {
		t.Errorf("Sources = %v, want the stored source URL", row.Sources)
	}
	if !row.UpdatedAt.Time.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", row.UpdatedAt.Time, updated)
	}
}

func TestQueries_GetMissingRecord(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	q := research.NewQueries(testDB.Pool)

	_, err := q.GetRecord(context.Background(), "never researched")
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("GetRecord() error = %v, want pgx.ErrNoRows", err)
	}
}

func TestQueries_UpsertOverwrites(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	q := research.NewQueries(testDB.Pool)

	first := research.UpsertRecordParams{
		SubjectKey: "globex",
		Subject:    "Globex",
		Summary:    "Initial findings.",
		Facts:      []byte(`{"overview":"v1"}`),
		Sources:    []string{"a"},
		Embedding:  vec(1, 0),
		UpdatedAt:  ts(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	if err := q.UpsertRecord(ctx, first); err != nil {
		t.Fatalf("UpsertRecord() first write error = %v", err)
	}

	refreshed := first
	refreshed.Summary = "Refreshed findings."
	refreshed.Facts = []byte(`{"overview":"v2"}`)
	refreshed.Sources = []string{"a", "b"}
	refreshed.UpdatedAt = ts(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if err := q.UpsertRecord(ctx, refreshed); err != nil {
		t.Fatalf("UpsertRecord() refresh error = %v", err)
	}

	row, err := q.GetRecord(ctx, "globex")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if row.Summary != "Refreshed findings." {
		t.Errorf("Summary = %q, want refreshed summary", row.Summary)
	}
	if len(row.Sources) != 2 {
		t.Errorf("Sources = %v, want 2 entries", row.Sources)
	}
	if !row.UpdatedAt.Time.Equal(refreshed.UpdatedAt.Time) {
		t.Errorf("UpdatedAt = %v, want refresh timestamp", row.UpdatedAt.Time)
	}
}

func TestQueries_SearchRecords(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	q := research.NewQueries(testDB.Pool)
	now := time.Now().UTC()

	seed := []research.UpsertRecordParams{
		{SubjectKey: "near", Subject: "Near Inc", Summary: "close match",
			Facts: []byte(`{}`), Embedding: vec(1, 0.1), UpdatedAt: ts(now)},
		{SubjectKey: "far", Subject: "Far Ltd", Summary: "distant match",
			Facts: []byte(`{}`), Embedding: vec(0, 1), UpdatedAt: ts(now)},
	}
	for _, r := range seed {
		if err := q.UpsertRecord(ctx, r); err != nil {
			t.Fatalf("UpsertRecord(%s) error = %v", r.SubjectKey, err)
		}
	}

	rows, err := q.SearchRecords(ctx, research.SearchRecordsParams{
		QueryEmbedding: vec(1, 0),
		Threshold:      0.5,
		ResultLimit:    5,
	})
	if err != nil {
		t.Fatalf("SearchRecords() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("SearchRecords() returned %d rows, want 1", len(rows))
	}
	if rows[0].SubjectKey != "near" {
		t.Errorf("SubjectKey = %s, want near", rows[0].SubjectKey)
	}
	if rows[0].Similarity <= 0.5 {
		t.Errorf("Similarity = %f, want > threshold", rows[0].Similarity)
	}
}

func TestQueries_DeleteRecord(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	q := research.NewQueries(testDB.Pool)

	err := q.UpsertRecord(ctx, research.UpsertRecordParams{
		SubjectKey: "doomed",
		Subject:    "Doomed Co",
		Summary:    "soon gone",
		Facts:      []byte(`{}`),
		Embedding:  vec(1),
		UpdatedAt:  ts(time.Now().UTC()),
	})
	if err != nil {
		t.Fatalf("UpsertRecord() error = %v", err)
	}

	deleted, err := q.DeleteRecord(ctx, "doomed")
	if err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteRecord() = %d, want 1", deleted)
	}

	if _, err := q.GetRecord(ctx, "doomed"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("GetRecord() after delete error = %v, want pgx.ErrNoRows", err)
	}
}
