package agent

import (
	"time"

	"github.com/formpilot/formpilot/internal/task"
)

// Request is one generation request.
type Request struct {
	// Kind selects the task descriptor.
	Kind task.Kind `json:"kind"`

	// Input is the raw task input, validated against the task's input
	// shape before any work happens.
	Input map[string]any `json:"input"`

	// RequestID correlates logs and traces. Assigned when empty.
	RequestID string `json:"request_id,omitempty"`
}

// Source identifies one piece of retrieved context that informed a
// response.
type Source struct {
	Type string `json:"type"` // retrieval.SourceKnowledge or SourceResearch
	Ref  string `json:"ref"`  // chunk ID or research subject key
}

// Response is the uniform envelope every request resolves to. Success
// is false only for input validation failures; provider trouble
// degrades to lower-confidence output instead of failing.
type Response struct {
	RequestID string    `json:"request_id"`
	Kind      task.Kind `json:"kind"`
	Success   bool      `json:"success"`

	// Output is a payload valid for the task's output shape. Nil when
	// Success is false.
	Output map[string]any `json:"output,omitempty"`

	// Errors carries field-level validation failures when Success is
	// false.
	Errors []task.FieldError `json:"errors,omitempty"`

	// Confidence estimates output quality: 0.9 for clean model
	// output, down to 0.3 for textual fallback.
	Confidence float64 `json:"confidence"`

	// NeedsReview marks outputs a human should check before use.
	NeedsReview bool `json:"needs_review"`

	// Synthetic marks outputs produced without a model call.
	Synthetic bool `json:"synthetic"`

	// Provider names the backend that served the request.
	Provider string `json:"provider,omitempty"`

	// Cached marks responses served from the response cache.
	Cached bool `json:"cached"`

	// Coalesced marks responses shared with a concurrent identical
	// request.
	Coalesced bool `json:"coalesced,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Sources  []Source `json:"sources,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
