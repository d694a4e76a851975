// Package research persists company research results in PostgreSQL so
// repeated requests about the same subject reuse prior work instead of
// re-running the full research flow.
//
// Records are keyed by a normalized subject key and carry an
// updated_at timestamp. A record older than the configured staleness
// window is still returned by Get but reported stale, which triggers a
// refresh; a refresh that fails leaves the stale record in place.
package research

import (
	"strings"
	"time"
	"unicode"
)

// Record is one persisted research result.
type Record struct {
	SubjectKey string         // Normalized lookup key
	Subject    string         // Display name as originally requested
	Summary    string         // Prose summary of the findings
	Facts      map[string]any // Structured findings (industry, size, ...)
	Sources    []string       // Where the findings came from
	UpdatedAt  time.Time      // Last successful refresh
}

// SearchResult pairs a record with its similarity to a query vector.
type SearchResult struct {
	Record     Record
	Similarity float64
}

// NormalizeSubjectKey canonicalizes a subject name for use as a lookup
// key: lowercase, punctuation stripped, whitespace collapsed. "Acme
// Corp.", "acme  corp" and "ACME CORP" all map to "acme corp".
func NormalizeSubjectKey(subject string) string {
	var b strings.Builder
	b.Grow(len(subject))
	for _, r := range strings.ToLower(subject) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
		// Punctuation is dropped.
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IsStale reports whether a record's last refresh is older than the
// staleness window at the given instant.
func IsStale(rec Record, now time.Time, window time.Duration) bool {
	return now.Sub(rec.UpdatedAt) > window
}
