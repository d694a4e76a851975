package provider

import (
	"sync"

	"github.com/formpilot/formpilot/internal/task"
)

// UsageStats summarizes dispatch outcomes for one task kind,
// including the token counts the backends reported.
type UsageStats struct {
	Requests     int64            `json:"requests"`
	Synthetic    int64            `json:"synthetic"`
	InputTokens  int64            `json:"input_tokens"`
	OutputTokens int64            `json:"output_tokens"`
	ByProvider   map[string]int64 `json:"by_provider"`
}

// UsageRecorder counts, per task kind, how requests were served. It
// backs the stats command so operators can see how often the chain
// degrades to synthetic output.
// Safe for concurrent use by multiple goroutines.
type UsageRecorder struct {
	mu     sync.Mutex
	byKind map[task.Kind]*UsageStats
}

// NewUsageRecorder creates an empty recorder.
func NewUsageRecorder() *UsageRecorder {
	return &UsageRecorder{byKind: make(map[task.Kind]*UsageStats)}
}

// record counts one served request and its token usage. Nil receivers
// are tolerated so the dispatcher can run without accounting.
func (u *UsageRecorder) record(kind task.Kind, providerName string, synthetic bool, inputTokens, outputTokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	stats, ok := u.byKind[kind]
	if !ok {
		stats = &UsageStats{ByProvider: make(map[string]int64)}
		u.byKind[kind] = stats
	}
	stats.Requests++
	stats.InputTokens += int64(inputTokens)
	stats.OutputTokens += int64(outputTokens)
	stats.ByProvider[providerName]++
	if synthetic {
		stats.Synthetic++
	}
}

// Snapshot returns a copy of the counters keyed by task kind.
func (u *UsageRecorder) Snapshot() map[task.Kind]UsageStats {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[task.Kind]UsageStats, len(u.byKind))
	for kind, stats := range u.byKind {
		byProvider := make(map[string]int64, len(stats.ByProvider))
		for name, n := range stats.ByProvider {
			byProvider[name] = n
		}
		out[kind] = UsageStats{
			Requests:     stats.Requests,
			Synthetic:    stats.Synthetic,
			InputTokens:  stats.InputTokens,
			OutputTokens: stats.OutputTokens,
			ByProvider:   byProvider,
		}
	}
	return out
}
