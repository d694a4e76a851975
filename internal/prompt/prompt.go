// Package prompt composes provider prompts from a task descriptor,
// validated input, and retrieved context.
//
// Composition is a pure function: the same descriptor, input, and
// snippets always produce the same Prompt. Generation parameters come
// from a fixed policy table keyed by the task's determinism class, so
// extraction-style tasks run at temperature zero while drafting tasks
// keep some variation.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/formpilot/formpilot/internal/retrieval"
	"github.com/formpilot/formpilot/internal/task"
)

// ContextTokenBudget caps how much retrieved context is inlined into
// a prompt regardless of task. Tasks with a smaller output budget get
// a correspondingly smaller context budget; see contextBudget.
// Estimated at roughly four characters per token.
const ContextTokenBudget = 2000

// Policy holds the generation parameters for one determinism class.
type Policy struct {
	Temperature float64
	TopP        float64
}

// policies maps each determinism class to its generation parameters.
// Factual and structured tasks run fully deterministic.
var policies = map[task.Determinism]Policy{
	task.DeterminismFactual:    {Temperature: 0, TopP: 1},
	task.DeterminismStructured: {Temperature: 0, TopP: 1},
	task.DeterminismBalanced:   {Temperature: 0.4, TopP: 0.95},
	task.DeterminismCreative:   {Temperature: 0.8, TopP: 0.95},
}

// PolicyFor returns the generation policy for a determinism class.
// Unknown classes get the balanced policy.
func PolicyFor(d task.Determinism) Policy {
	if p, ok := policies[d]; ok {
		return p
	}
	return policies[task.DeterminismBalanced]
}

// Prompt is a fully composed provider request.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Compose builds the prompt for a task. Snippets must already be
// ranked; when the context budget is exceeded the lowest-ranked
// snippets are dropped first.
func Compose(desc task.Descriptor, input map[string]any, snippets []retrieval.Snippet) Prompt {
	policy := PolicyFor(desc.Determinism)

	var b strings.Builder
	b.WriteString(renderTemplate(desc.Template, input))

	if block := contextBlock(snippets, contextBudget(desc.MaxTokens)); block != "" {
		b.WriteString("\n\n")
		b.WriteString(block)
	}

	return Prompt{
		System:      desc.SystemPrompt,
		User:        b.String(),
		Temperature: policy.Temperature,
		TopP:        policy.TopP,
		MaxTokens:   desc.MaxTokens,
	}
}

// contextBudget bounds retrieved context by the task's own token
// budget, capped at ContextTokenBudget for large-budget tasks.
func contextBudget(maxTokens int) int {
	if maxTokens > 0 && maxTokens < ContextTokenBudget {
		return maxTokens
	}
	return ContextTokenBudget
}

// renderTemplate substitutes {{field}} placeholders with formatted
// input values. Unknown placeholders render as empty strings so a
// template never leaks its own syntax into a prompt.
func renderTemplate(template string, input map[string]any) string {
	result := template
	for {
		start := strings.Index(result, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end < 0 {
			break
		}
		end += start
		field := strings.TrimSpace(result[start+2 : end])
		result = result[:start] + formatValue(input[field]) + result[end+2:]
	}
	return result
}

// formatValue renders an input value for prompt text.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// Validated numbers arrive as float64; render integers
		// without a trailing ".0".
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		// Deterministic rendering for nested objects.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, formatValue(val[k])))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// contextBlock renders ranked snippets into a delimited block,
// dropping from the tail once the token budget is spent. An empty
// result means no context fit or none was supplied.
func contextBlock(snippets []retrieval.Snippet, budget int) string {
	if len(snippets) == 0 {
		return ""
	}

	var b strings.Builder
	spent := 0
	included := 0
	for _, s := range snippets {
		cost := estimateTokens(s.Text)
		if spent+cost > budget {
			break
		}
		spent += cost
		included++
		fmt.Fprintf(&b, "[%s] %s\n", s.Source, s.Text)
	}
	if included == 0 {
		return ""
	}

	return "--- CONTEXT ---\n" + b.String() + "--- END CONTEXT ---"
}

// estimateTokens approximates the token cost of text. Four characters
// per token is close enough for budgeting.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
