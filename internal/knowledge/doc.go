// Package knowledge stores reusable domain snippets (form-filling
// guidance, writing conventions, task-specific reference text) as
// embedded chunks in PostgreSQL with pgvector.
//
// Architecture:
//
//	Store (business logic, embedding generation)
//	  └── Querier (database operations, see queries.go for the pgx
//	      implementation)
//
// Chunks belong to a parent document and carry a JSONB metadata map
// used for filtered search (e.g. restricting to one task kind).
// Similarity is cosine, normalized to [0, 1].
package knowledge
