// Package cache implements the in-process cache tiers of the
// orchestration core: the TTL+LRU response cache and the content-hash
// keyed embedding cache. The persisted research cache lives in the
// research package because it is database-backed.
//
// Caches are explicitly constructed instances parameterized by a
// clock.Clock — there is no package-level singleton — so tests drive TTL
// expiry by advancing a fake clock. Each cache is the sole mutator of
// its own entries and is safe for concurrent use; racing writers for the
// same key resolve last-writer-wins, and a reader never observes a
// partially written value.
package cache
